package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"kline_backend/config"
	"kline_backend/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupAuthRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateUserModels(db))

	config.AppConfig = &config.Config{JWTSecret: "test-secret-key"}

	uc := NewUserController(db)
	router := gin.New()
	router.POST("/register", uc.Register)
	router.POST("/login", uc.Login)
	return router, db
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterAndLogin(t *testing.T) {
	router, db := setupAuthRouter(t)

	rec := postJSON(t, router, "/register", gin.H{
		"email":        "Trader@Example.com",
		"password":     "correct-horse",
		"display_name": "Trader",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"token"`)

	rec = postJSON(t, router, "/login", gin.H{
		"email":    "trader@example.com",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"token"`)

	var user models.User
	require.NoError(t, db.Where("email = ?", "trader@example.com").First(&user).Error)
	assert.NotNil(t, user.LastLoginAt, "successful login records the timestamp")
}

func TestRegister_DuplicateEmail(t *testing.T) {
	router, _ := setupAuthRouter(t)

	body := gin.H{"email": "trader@example.com", "password": "correct-horse"}
	require.Equal(t, http.StatusCreated, postJSON(t, router, "/register", body).Code)
	assert.Equal(t, http.StatusConflict, postJSON(t, router, "/register", body).Code)
}

func TestLogin_WrongPassword(t *testing.T) {
	router, _ := setupAuthRouter(t)

	require.Equal(t, http.StatusCreated, postJSON(t, router, "/register", gin.H{
		"email": "trader@example.com", "password": "correct-horse",
	}).Code)

	rec := postJSON(t, router, "/login", gin.H{
		"email": "trader@example.com", "password": "wrong-horse",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_SurvivesLastLoginWriteFailure(t *testing.T) {
	router, db := setupAuthRouter(t)

	require.Equal(t, http.StatusCreated, postJSON(t, router, "/register", gin.H{
		"email": "trader@example.com", "password": "correct-horse",
	}).Code)

	// Make every update fail; the login timestamp write is best effort and
	// must not block token issuance
	require.NoError(t, db.Callback().Update().Before("gorm:update").
		Register("fail_updates", func(tx *gorm.DB) {
			tx.AddError(errors.New("updates disabled"))
		}))

	rec := postJSON(t, router, "/login", gin.H{
		"email": "trader@example.com", "password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"token"`)
}
