package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/mathtutor/internal/aiservice"
	"github.com/pavelanni/mathtutor/internal/diagnostic"
	"github.com/pavelanni/mathtutor/internal/grading"
	"github.com/pavelanni/mathtutor/internal/handler"
	appI18n "github.com/pavelanni/mathtutor/internal/i18n"
	"github.com/pavelanni/mathtutor/internal/llm"
	"github.com/pavelanni/mathtutor/internal/llm/prompts"
	"github.com/pavelanni/mathtutor/internal/model"
	"github.com/pavelanni/mathtutor/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: reading .env: %v\n", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mathtutor",
		Short: "Math tutoring API: diagnostic tests and step-by-step answer grading",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "mathtutor.db", "SQLite database path")
	f.StringSliceP("exercises", "e", []string{"exercises/sample_fr.json"}, "Paths to exercise JSON files (repeatable)")
	f.String("diagnostic-questions", "", "Diagnostic question bank JSON file (empty = built-in bank)")
	f.Int("diagnostic-size", diagnostic.DefaultSize, "Questions drawn per diagnostic test")
	f.String("evaluator", "none", "Step evaluator for wrong final answers (aiservice, llm, none)")
	f.String("ai-url", "", "Base URL of the AI service (step evaluation and OCR)")
	f.Duration("ai-timeout", 20*time.Second, "Timeout for each AI service or LLM call")
	f.String("llm-provider", llm.ProviderOpenAI, "LLM provider (openai, anthropic, gemini)")
	f.String("llm-url", "", "OpenAI-compatible API base URL (e.g. http://localhost:11434/v1)")
	f.String("llm-key", "", "API key for the LLM provider")
	f.String("llm-model", "", "LLM model name (provider default when empty)")
	f.String("prompt-variant", string(prompts.PromptStandard), "Step evaluation prompt variant (strict, standard, lenient)")
	f.StringP("lang", "l", "fr", "Default language for API messages (en, fr)")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set MATHTUTOR_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all submissions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "mathtutor.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("MATHTUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("mathtutor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/mathtutor")
	v.AddConfigPath("/etc/mathtutor")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if n, err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	} else if n > 0 {
		slog.Info("removed expired sessions", "count", n)
	}

	if err := loadExercises(ctx, db, v.GetStringSlice("exercises")); err != nil {
		return fmt.Errorf("load exercises: %w", err)
	}

	bank, err := diagnostic.LoadBank(v.GetString("diagnostic-questions"))
	if err != nil {
		return fmt.Errorf("load diagnostic questions: %w", err)
	}
	engine := diagnostic.New(db, bank, diagnostic.WithSize(v.GetInt("diagnostic-size")))

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	gradingOpts, err := evaluatorOptions(ctx, v)
	if err != nil {
		return err
	}
	svc := grading.NewService(db, db, gradingOpts...)

	h := handler.New(db, svc, engine, handler.Config{
		SecureCookies: v.GetBool("secure-cookies"),
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware)
	h.Routes(r)

	c := cors.New(cors.Options{
		AllowedOrigins:   v.GetStringSlice("cors-origins"),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Accept-Language"},
		AllowCredentials: true,
	})

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"evaluator", v.GetString("evaluator"),
		"diagnostic_questions", engine.BankSize(),
		"diagnostic_size", v.GetInt("diagnostic-size"),
	)
	return http.ListenAndServe(addr, c.Handler(r))
}

// evaluatorOptions wires the step evaluator and the OCR collaborator. Neither
// is required: an unreachable service is only logged, since grading degrades
// to no AI feedback.
func evaluatorOptions(ctx context.Context, v *viper.Viper) ([]grading.Option, error) {
	timeout := v.GetDuration("ai-timeout")
	opts := []grading.Option{grading.WithEvalTimeout(timeout)}

	var ai *aiservice.Client
	if url := v.GetString("ai-url"); url != "" {
		ai = aiservice.New(url, timeout)
		if err := ai.Ping(ctx); err != nil {
			slog.Warn("AI service health check failed", "url", url, "error", err)
		} else {
			slog.Info("AI service OK", "url", url)
		}
		opts = append(opts, grading.WithTextExtractor(ai))
	}

	switch kind := strings.ToLower(strings.TrimSpace(v.GetString("evaluator"))); kind {
	case "", "none":
		slog.Info("no step evaluator configured; wrong answers get no step feedback")
	case "aiservice":
		if ai == nil {
			return nil, fmt.Errorf("evaluator aiservice needs --ai-url")
		}
		opts = append(opts, grading.WithEvaluator(ai))
	case "llm":
		ev, err := newLLMEvaluator(ctx, v)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grading.WithEvaluator(ev))
	default:
		return nil, fmt.Errorf("unknown evaluator %q (want aiservice, llm or none)", kind)
	}
	return opts, nil
}

func newLLMEvaluator(ctx context.Context, v *viper.Viper) (*llm.StepEvaluator, error) {
	if err := prompts.Load(prompts.DefaultFS); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", variant)
		variant = string(prompts.PromptStandard)
	}

	provider, err := llm.NewProvider(ctx, llm.Config{
		Provider: v.GetString("llm-provider"),
		BaseURL:  v.GetString("llm-url"),
		APIKey:   v.GetString("llm-key"),
		Model:    v.GetString("llm-model"),
	})
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	if err := llm.Ping(ctx, provider); err != nil {
		slog.Warn("LLM health check failed", "provider", v.GetString("llm-provider"), "error", err)
	} else {
		slog.Info("LLM provider ready", "provider", v.GetString("llm-provider"),
			"model", provider.ModelID(), "prompt_variant", variant)
	}
	return llm.NewStepEvaluator(provider, prompts.PromptVariant(variant))
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	records, err := db.ExportSubmissions(context.Background())
	if err != nil {
		return fmt.Errorf("export submissions: %w", err)
	}

	export := model.SubmissionExport{
		ExportedAt:  time.Now().UTC(),
		Count:       len(records),
		Submissions: records,
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	slog.Info("exported submissions", "count", len(records), "output", outPath)
	return nil
}

// loadExercises imports exercise files. A file whose hash matches the last
// import is skipped; a changed file is upserted so edits reach existing ids.
func loadExercises(ctx context.Context, db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("exercises file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("exercises file changed since last import, updating exercises", "path", path)
		}

		var imports []model.ExerciseImport
		if err := json.Unmarshal(data, &imports); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for i, ei := range imports {
			ex, err := toExercise(ei)
			if err != nil {
				return fmt.Errorf("%s: exercise %d: %w", path, i, err)
			}
			if err := db.UpsertExercise(ctx, ex); err != nil {
				return fmt.Errorf("store exercise %s from %s: %w", ex.ID, path, err)
			}
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported exercises", "path", path, "count", len(imports))
	}
	return nil
}

func toExercise(ei model.ExerciseImport) (model.Exercise, error) {
	if strings.TrimSpace(ei.ID) == "" {
		return model.Exercise{}, model.Required("id")
	}
	if strings.TrimSpace(ei.Solution) == "" {
		return model.Exercise{}, model.Required("solution")
	}
	mode := model.CorrectionMode(strings.ToUpper(string(ei.CorrectionMode)))
	switch mode {
	case model.CorrectionAuto, model.CorrectionAI, model.CorrectionManual:
	case "":
		mode = model.CorrectionAuto
	default:
		return model.Exercise{}, fmt.Errorf("unknown correction mode %q", ei.CorrectionMode)
	}
	points := model.DefaultPoints
	if ei.Points != nil {
		if *ei.Points < 0 {
			return model.Exercise{}, fmt.Errorf("exercise %s: negative points", ei.ID)
		}
		points = *ei.Points
	}
	return model.Exercise{
		ID:             ei.ID,
		Title:          ei.Title,
		Description:    ei.Description,
		Difficulty:     model.ParseLevel(ei.Difficulty),
		Topics:         ei.Topics,
		Solution:       ei.Solution,
		Points:         points,
		StepsRequired:  ei.StepsRequired,
		CorrectionMode: mode,
	}, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or MATHTUTOR_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
