package handlers

import (
	"errors"
	"net/http"

	"pairchat/internal/config"
	"pairchat/internal/middleware"
	"pairchat/internal/services"
	"pairchat/internal/store"
	"pairchat/internal/utils"
	"pairchat/pkg/logger"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService *services.AuthService
	store       store.Store
	jwtConfig   config.JWTConfig
}

func NewAuthHandler(authService *services.AuthService, st store.Store, jwtConfig config.JWTConfig) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		store:       st,
		jwtConfig:   jwtConfig,
	}
}

type sessionResponse struct {
	Token string      `json:"token"`
	User  interface{} `json:"user"`
}

// Signup creates a password account and returns a session token
func (h *AuthHandler) Signup(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required,min=6"`
		Name     string `json:"name"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithCode(c, http.StatusBadRequest, utils.CodeInvalidRequest, "Email and a password of at least 6 characters are required")
		return
	}

	account, err := h.authService.SignUp(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, services.ErrEmailInUse) {
			utils.ErrorResponseWithCode(c, http.StatusConflict, utils.CodeEmailInUse, "An account with this email already exists")
			return
		}
		logger.LogError(err, "Signup failed", map[string]interface{}{
			"ip": c.ClientIP(),
		})
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to create account")
		return
	}

	h.respondWithSession(c, account.UID, account.Email, account.Name, account)
}

// Login verifies email and password and returns a session token
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithCode(c, http.StatusBadRequest, utils.CodeInvalidRequest, "Email and password are required")
		return
	}

	account, err := h.authService.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			logger.LogSecurityEvent("login_failed", "", c.ClientIP(), map[string]interface{}{
				"email": req.Email,
			})
			utils.ErrorResponseWithCode(c, http.StatusUnauthorized, utils.CodeInvalidCredentials, "Invalid email or password")
			return
		}
		logger.LogError(err, "Login failed", map[string]interface{}{
			"ip": c.ClientIP(),
		})
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to sign in")
		return
	}

	h.respondWithSession(c, account.UID, account.Email, account.Name, account)
}

// Google signs in with a Google-provided profile, creating the federated
// account on first use
func (h *AuthHandler) Google(c *gin.Context) {
	var req struct {
		Email     string `json:"email" binding:"required"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponseWithCode(c, http.StatusBadRequest, utils.CodeInvalidRequest, "Email is required")
		return
	}

	account, err := h.authService.SignInWithGoogle(c.Request.Context(), req.Email, req.Name, req.AvatarURL)
	if err != nil {
		if errors.Is(err, services.ErrEmailInUse) {
			utils.ErrorResponseWithCode(c, http.StatusConflict, utils.CodeEmailInUse, "This email is registered with a password account")
			return
		}
		logger.LogError(err, "Google sign-in failed", map[string]interface{}{
			"ip": c.ClientIP(),
		})
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to sign in")
		return
	}

	h.respondWithSession(c, account.UID, account.Email, account.Name, account)
}

// Logout flips presence offline. Session tokens are stateless; the
// client discards its copy.
func (h *AuthHandler) Logout(c *gin.Context) {
	uid := middleware.GetUserID(c)

	err := h.store.SetDocument(c.Request.Context(), "users/"+uid, map[string]interface{}{
		"online": false,
	}, true)
	if err != nil {
		logger.LogError(err, "Failed to clear presence on logout", map[string]interface{}{
			"uid": uid,
		})
	}

	logger.LogUserAction(uid, "logout", nil)
	utils.SuccessResponseWithMessage(c, "Signed out", nil)
}

// Me returns the authenticated user's account
func (h *AuthHandler) Me(c *gin.Context) {
	uid := middleware.GetUserID(c)

	account, err := h.authService.GetAccount(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			utils.ErrorResponseWithCode(c, http.StatusNotFound, utils.CodeUnauthorized, "Account not found")
			return
		}
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to load account")
		return
	}

	utils.SuccessResponse(c, account)
}

func (h *AuthHandler) respondWithSession(c *gin.Context, uid, email, name string, account interface{}) {
	token, err := utils.GenerateSessionToken(h.jwtConfig, uid, email, name)
	if err != nil {
		logger.LogError(err, "Failed to issue session token", map[string]interface{}{
			"uid": uid,
		})
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to create session")
		return
	}

	utils.SuccessResponse(c, sessionResponse{
		Token: token,
		User:  account,
	})
}
