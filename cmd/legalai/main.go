package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/legalai/legalai/client/config"
	"github.com/legalai/legalai/client/document"
	"github.com/legalai/legalai/client/pkg/logger"
	"github.com/legalai/legalai/client/session"
	"github.com/legalai/legalai/client/transport"
)

func main() {
	cmd := flag.String("cmd", "", "Command: login|signup|google-login|whoami|upload|download|logout")
	cfgPath := flag.String("config", "", "Path to config file")
	server := flag.String("server", "", "Override API base URL")
	email := flag.String("email", "", "Account email")
	password := flag.String("password", "", "Account password")
	name := flag.String("name", "", "Display name (signup)")
	googleToken := flag.String("token", "", "Google-issued token (google-login)")
	file := flag.String("file", "", "Document to upload")
	link := flag.String("link", "", "Download link returned by upload")
	outDir := flag.String("out", ".", "Directory for downloaded artifacts")
	save := flag.Bool("save", false, "Also download the summary artifact after upload")
	flag.Parse()

	cfg := loadConfig(*cfgPath)
	if env := os.Getenv("LEGALAI_SERVER"); env != "" {
		cfg.API.BaseURL = env
	}
	if *server != "" {
		cfg.API.BaseURL = *server
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	store := transport.NewFileTokenStore(cfg.API.TokenFile)
	client := transport.NewClient(cfg.API.BaseURL, store, time.Duration(cfg.API.TimeoutSeconds)*time.Second)
	manager := session.NewManager(client)
	tracker := document.NewTracker(client)

	manager.OnForcedLogout(func() {
		tracker.Reset()
		fmt.Println("Your session has expired. Please log in again.")
	})

	app := &app{
		client:  client,
		manager: manager,
		tracker: tracker,
	}

	ctx := context.Background()

	var err error
	switch *cmd {
	case "login":
		err = app.login(ctx, *email, *password)
	case "signup":
		err = app.signup(ctx, *name, *email, *password)
	case "google-login":
		err = app.googleLogin(ctx, *googleToken)
	case "whoami":
		err = app.whoami(ctx)
	case "upload":
		err = app.upload(ctx, *file, *save, *outDir)
	case "download":
		err = app.download(ctx, *link, *outDir)
	case "logout":
		app.logout()
	default:
		fmt.Println("Usage: legalai -cmd login|signup|google-login|whoami|upload|download|logout")
		os.Exit(1)
	}

	if err != nil {
		fmt.Println("Error:", errorMessage(err))
		os.Exit(1)
	}
}

func loadConfig(path string) *config.Config {
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".legalai", "config.yaml")
		}
	}
	if path != "" {
		if cfg, err := config.Load(path); err == nil {
			return cfg
		}
	}
	return config.Default()
}

type app struct {
	client  *transport.Client
	manager *session.Manager
	tracker *document.Tracker
}

func (a *app) login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("-email and -password required")
	}
	if err := a.manager.Login(ctx, email, password); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s <%s>\n", a.manager.User().Name, a.manager.User().Email)
	return nil
}

func (a *app) signup(ctx context.Context, name, email, password string) error {
	if name == "" || email == "" || password == "" {
		return fmt.Errorf("-name, -email and -password required")
	}
	if err := a.manager.Signup(ctx, name, email, password); err != nil {
		return err
	}
	fmt.Printf("Account created. Logged in as %s <%s>\n", a.manager.User().Name, a.manager.User().Email)
	return nil
}

func (a *app) googleLogin(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("-token required")
	}
	if err := a.manager.GoogleLogin(ctx, token); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s <%s>\n", a.manager.User().Name, a.manager.User().Email)
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	if err := a.manager.Restore(ctx); err != nil {
		return err
	}
	user := a.manager.User()
	if user == nil {
		fmt.Println("Not logged in.")
		return nil
	}
	fmt.Printf("%s <%s>\n", user.Name, user.Email)
	return nil
}

func (a *app) upload(ctx context.Context, file string, save bool, outDir string) error {
	if file == "" {
		return fmt.Errorf("-file required")
	}

	staged, err := a.tracker.StagePaths(file)
	if err != nil {
		return err
	}
	if len(staged) == 0 {
		return fmt.Errorf("unsupported file type: only pdf, png, jpg and jpeg are accepted")
	}

	fmt.Printf("Uploading %s...\n", staged[0].Filename)
	result, err := a.tracker.Submit(ctx)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(result.Summary)
	fmt.Println()
	fmt.Println("Summary report:", result.DownloadLink)

	if save {
		filename, data, err := a.tracker.FetchArtifact(ctx)
		if err != nil {
			return err
		}
		return writeArtifact(outDir, filename, data)
	}
	return nil
}

func (a *app) download(ctx context.Context, link, outDir string) error {
	if link == "" {
		return fmt.Errorf("-link required")
	}

	filename := path.Base(link)
	data, err := a.client.Download(ctx, "/api/user/download/"+filename)
	if err != nil {
		return err
	}
	return writeArtifact(outDir, filename, data)
}

func (a *app) logout() {
	a.manager.Logout()
	fmt.Println("Logged out.")
}

func writeArtifact(dir, filename string, data []byte) error {
	dest := filepath.Join(dir, filename)
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return fmt.Errorf("failed to save %s: %w", dest, err)
	}
	fmt.Println("Saved", dest)
	return nil
}

// errorMessage prefers the backend's display message over the raw error
func errorMessage(err error) string {
	var te *transport.Error
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	return err.Error()
}
