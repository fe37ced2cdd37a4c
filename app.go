package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"rentledger/config"
	"rentledger/controllers"
	"rentledger/database"
	"rentledger/middleware"
	"rentledger/services"
	"rentledger/utils"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

const (
	requestsPerMinute = 100
	shutdownTimeout   = 15 * time.Second
)

// application связывает конфигурацию, хранилище и сервисы процесса
type application struct {
	cfg      *config.Config
	db       *database.Database
	redis    *redis.Client
	metrics  *utils.Metrics
	email    *services.EmailService
	runs     *services.ImportRunService
	arrears  *services.ArrearsService
	importer *services.ImportService
	worker   *services.ArrearsWorker
}

func newApplication(cfg *config.Config) (*application, error) {
	if err := utils.InitLoggers(cfg.Log.Dir); err != nil {
		return nil, err
	}

	db, err := database.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}

	policy, err := services.NewDuePolicy(cfg.Arrears.DueFormula)
	if err != nil {
		db.Close()
		return nil, err
	}
	thresholds := services.Thresholds{
		PressureMonths: cfg.Arrears.PressureMonths,
		PressureAmount: cfg.Arrears.PressureAmount,
	}

	app := &application{
		cfg:     cfg,
		db:      db,
		metrics: utils.NewMetrics(),
		email:   services.NewEmailService(cfg),
	}

	if cfg.Redis.Addr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	app.runs = services.NewImportRunService(db.DB)
	app.arrears = services.NewArrearsService(db.DB, policy, thresholds)
	ledger := services.NewLedgerService(db.DB, services.NewEntityResolver())

	var dispatcher services.RecomputeDispatcher = services.NewInlineDispatcher(app.arrears, app.metrics)
	if cfg.Arrears.Mode == config.ArrearsModeQueue {
		dispatcher = services.NewRedisDispatcher(app.redis, cfg.Arrears.QueueKey)
	}
	app.importer = services.NewImportService(ledger, app.runs, dispatcher, app.email, app.metrics, cfg.Import.MaxErrors)

	app.worker = services.NewArrearsWorker(app.arrears, app.runs, app.redis, services.WorkerConfig{
		QueueKey: cfg.Arrears.QueueKey,
		LockKey:  cfg.Arrears.LockKey,
		Interval: cfg.Arrears.Interval,
	}, app.email, app.metrics)

	utils.LogInfo("Application initialized (db=%s, arrears mode=%s, email=%t)", cfg.DB.Driver, cfg.Arrears.Mode, app.email.Enabled())
	return app, nil
}

// Close освобождает подключения к базе и Redis
func (a *application) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			utils.LogError("Failed to close redis client: %v", err)
		}
	}
	if err := a.db.Close(); err != nil {
		utils.LogError("Failed to close database: %v", err)
	}
}

// newRouter регистрирует маршруты HTTP API
func newRouter(a *application) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.RateLimit(utils.NewRateLimiter(requestsPerMinute, time.Minute), requestsPerMinute))

	// Публичный маршрут проверки состояния
	router.HandleFunc("/health", healthHandler)

	importController := controllers.NewImportController(a.importer, a.runs, a.cfg.Import.MaxUploadMB)
	arrearsController := controllers.NewArrearsController(a.arrears, a.metrics)
	metricsController := controllers.NewMetricsController(a.metrics)

	// Защищенные маршруты
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.LoggingMiddleware(a.metrics))
	protected.Use(middleware.AuthMiddleware([]byte(a.cfg.JWT.SecretKey)))

	// Маршруты импорта
	protected.HandleFunc("/imports", importController.Upload).Methods("POST")
	protected.HandleFunc("/imports", importController.ListRuns).Methods("GET")
	protected.HandleFunc("/imports/{id}", importController.GetRun).Methods("GET")

	// Маршруты задолженности
	protected.HandleFunc("/arrears/recompute", arrearsController.Recompute).Methods("POST")
	protected.HandleFunc("/arrears", arrearsController.ListSnapshots).Methods("GET")
	protected.HandleFunc("/arrears/export", arrearsController.Export).Methods("GET")

	protected.HandleFunc("/metrics", metricsController.GetMetrics).Methods("GET")

	return router
}

// healthHandler отвечает на проверку состояния
func healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// serve запускает HTTP-сервер и воркер пересчёта до отмены ctx
func (a *application) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.worker.Start(ctx)
	defer a.worker.Wait()
	defer cancel()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.LogInfo("Server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("ошибка запуска сервера: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	utils.LogInfo("Shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки сервера: %w", err)
	}
	return nil
}
