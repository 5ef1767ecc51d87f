package stubserver

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/legalai/legalai/client/config"
	"github.com/legalai/legalai/client/middleware"
)

// Server is an in-memory reimplementation of the LegalAI backend's REST
// contract, for local development and integration tests. It mirrors the
// real backend's paths, payloads, and {"detail": ...} error bodies, but
// answers uploads with a canned summary instead of running analysis.
type Server struct {
	cfg   *config.StubConfig
	store *Store
}

func New(cfg *config.StubConfig) *Server {
	s := &Server{
		cfg:   cfg,
		store: NewStore(),
	}
	for _, u := range cfg.Users {
		if _, err := s.store.CreateUser(u.Name, u.Email, u.Password); err != nil {
			continue
		}
	}
	return s
}

// Store exposes the backing store, for test setup
func (s *Server) Store() *Store {
	return s.store
}

// Router builds the gin engine with the full middleware chain. Extra
// middleware (CORS in development) runs after the built-in chain.
func (s *Server) Router(extra ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.RateLimit(1000, time.Minute))
	router.Use(extra...)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api")
	{
		api.POST("/auth/login", s.login)
		api.POST("/auth/signup", s.signup)
		api.POST("/auth/google", s.googleLogin)
	}

	protected := api.Group("/")
	protected.Use(middleware.AuthRequired(s.cfg))
	{
		protected.GET("/auth/me", s.currentUser)
		protected.POST("/user/upload/", s.upload)
		protected.GET("/user/download/:filename", s.download)
	}

	return router
}

// login implements the password grant: form-encoded username/password in,
// bearer token out
func (s *Server) login(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Username and password required"})
		return
	}

	user, ok := s.store.Authenticate(username, password)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Incorrect email or password"})
		return
	}

	token, err := middleware.GenerateToken(user.Email, s.cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
	})
}

type signupRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// signup registers a new account and returns the created profile
func (s *Server) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request"})
		return
	}

	user, err := s.store.CreateUser(req.Name, req.Email, req.Password)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"detail": "An account with this email already exists"})
		return
	}

	c.JSON(http.StatusCreated, user)
}

type googleLoginRequest struct {
	Token string `json:"token" binding:"required"`
}

// googleLogin exchanges a Google-issued token for a stub access token. The
// stub cannot verify real Google tokens; it accepts tokens of the form
// "google:<email>" and fabricates the account on first use.
func (s *Server) googleLogin(c *gin.Context) {
	var req googleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request"})
		return
	}

	email, ok := strings.CutPrefix(req.Token, "google:")
	if !ok || !strings.Contains(email, "@") {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid Google token"})
		return
	}

	name := email[:strings.Index(email, "@")]
	user := s.store.EnsureGoogleUser(email, name)

	token, err := middleware.GenerateToken(user.Email, s.cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// currentUser answers the who-am-I call
func (s *Server) currentUser(c *gin.Context) {
	email := middleware.GetEmail(c)
	user, ok := s.store.GetUser(email)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid authentication credentials"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// upload accepts one document and answers with a canned summary and a
// download link for the generated report
func (s *Server) upload(c *gin.Context) {
	email := middleware.GetEmail(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No file provided"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".pdf", ".png", ".jpg", ".jpeg":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Only PDF and image (png/jpg/jpeg) are supported"})
		return
	}

	if header.Size == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No readable text found in the uploaded file"})
		return
	}

	summary := cannedSummary(header.Filename, ext)

	stem := strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	artifactName := stem + "_summary.pdf"
	s.store.SaveArtifact(email, artifactName, summaryPDF(summary))

	c.JSON(http.StatusOK, gin.H{
		"summary":       summary,
		"download_link": "/api/user/download/" + artifactName,
	})
}

// download streams a previously generated artifact
func (s *Server) download(c *gin.Context) {
	email := middleware.GetEmail(c)
	filename := c.Param("filename")

	data, ok := s.store.Artifact(email, filename)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "File not found"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", data)
}

func cannedSummary(filename, ext string) string {
	source := "the document text"
	if ext != ".pdf" {
		source = "text extracted from the image"
	}
	return fmt.Sprintf(
		"Summary of %s: this document sets out an agreement between two parties. "+
			"Based on %s, the key points cover payment obligations, the duration of "+
			"the agreement, and the conditions under which either party may terminate.",
		filename, source,
	)
}
