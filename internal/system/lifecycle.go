package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/royalfresh/freshbridge/internal/api/rest"
	"github.com/royalfresh/freshbridge/internal/api/websocket"
	"github.com/royalfresh/freshbridge/internal/auth"
	"github.com/royalfresh/freshbridge/internal/bluetooth"
	"github.com/royalfresh/freshbridge/internal/config"
	"github.com/royalfresh/freshbridge/internal/dispatch"
	"github.com/royalfresh/freshbridge/internal/grades"
	"github.com/royalfresh/freshbridge/internal/interfaces"
	"github.com/royalfresh/freshbridge/internal/schedule"
	"go.uber.org/zap"
)

// Storage is the persistence surface the lifecycle wires together: the
// schedule table plus the preference flags.
type Storage interface {
	schedule.Store
	auth.PrefStore
}

type LifecycleManager struct {
	config      *config.Config
	storage     Storage
	logger      *zap.Logger
	wsHub       *websocket.Hub
	authService *auth.AuthService
	session     *bluetooth.Session
	repository  *schedule.Repository
	dispatcher  *dispatch.Dispatcher
	gradeLoader *grades.ProfileLoader

	restServer *rest.Server

	stateMu      sync.RWMutex
	currentState SystemState

	listenersMu     sync.RWMutex
	statusListeners []chan SystemStatus

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(
	storage Storage,
	provider bluetooth.Provider,
	cfg *config.Config,
	logger *zap.Logger,
) (*LifecycleManager, error) {
	jwtHandler := auth.NewJWTHandler(cfg.Auth.GetJWTSecret(), cfg.Auth.AccessTokenTTL)
	authService, err := auth.NewAuthService(logger, jwtHandler, storage, cfg.Auth.AccessCode)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	gradeLoader, err := grades.NewProfileLoader(cfg.Grades.SearchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create grade loader: %w", err)
	}

	wsHub := websocket.NewHub(logger, authService)
	session := bluetooth.NewSession(logger, provider, wsHub, cfg.Bluetooth.ServiceUUID, cfg.Bluetooth.WriteTimeout)
	repository := schedule.NewRepository(logger, storage, wsHub)
	dispatcher := dispatch.NewDispatcher(logger, session, repository)

	return &LifecycleManager{
		config:          cfg,
		storage:         storage,
		logger:          logger,
		wsHub:           wsHub,
		authService:     authService,
		session:         session,
		repository:      repository,
		dispatcher:      dispatcher,
		gradeLoader:     gradeLoader,
		currentState:    StateInitializing,
		shutdownChan:    make(chan struct{}),
		statusListeners: make([]chan SystemStatus, 0),
	}, nil
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting freshbridge")

	lm.setState(StateInitializing)
	lm.broadcastStatus()

	go lm.wsHub.Run()

	// Walk the adapter gating chain once at boot so clients connecting
	// later see a settled status.
	lm.session.Initialize(context.Background())

	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	lm.setState(StateRunning)
	lm.broadcastStatus()

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("service_uuid", lm.config.Bluetooth.ServiceUUID))

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authService)
	return lm.restServer.Start()
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		lm.broadcastStatus()

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		lm.broadcastStatus()

		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 3)

	// 1. Close the Bluetooth session (cancels any in-flight attempt)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := lm.session.Close(); err != nil {
			errChan <- fmt.Errorf("bluetooth session close failed: %w", err)
		}
	}()

	// 2. Stop the schedule mutation worker
	wg.Add(1)
	go func() {
		defer wg.Done()
		lm.repository.Close()
	}()

	// 3. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
		return nil
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		return fmt.Errorf("shutdown timeout exceeded")
	case err := <-errChan:
		return err
	}
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if lm.currentState == state {
		return
	}
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Forcing state transition", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System entered error state", zap.Error(err))
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = StateError
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	lm.stateMu.RUnlock()

	snapshot := lm.session.Snapshot()

	scheduleCount := 0
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if schedules, err := lm.repository.List(ctx); err == nil {
		scheduleCount = len(schedules)
	}

	return interfaces.SystemStatus{
		State:            state.String(),
		ConnectionStatus: string(snapshot.Status),
		ConnectedDevice:  snapshot.ConnectedName,
		ScheduleCount:    scheduleCount,
	}
}

func (lm *LifecycleManager) getStatusInternal() SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	return SystemStatus{
		State:     lm.currentState,
		Timestamp: time.Now().Unix(),
	}
}

func (lm *LifecycleManager) broadcastStatus() {
	status := lm.getStatusInternal()

	lm.listenersMu.RLock()
	defer lm.listenersMu.RUnlock()

	for _, listener := range lm.statusListeners {
		select {
		case listener <- status:
		default:
			// Channel full, skip
		}
	}
}

// SubscribeStatus subscribes to status updates
func (lm *LifecycleManager) SubscribeStatus() chan SystemStatus {
	ch := make(chan SystemStatus, 10)

	lm.listenersMu.Lock()
	lm.statusListeners = append(lm.statusListeners, ch)
	lm.listenersMu.Unlock()

	return ch
}

// UnsubscribeStatus unsubscribes from status updates
func (lm *LifecycleManager) UnsubscribeStatus(ch chan SystemStatus) {
	lm.listenersMu.Lock()
	defer lm.listenersMu.Unlock()

	for i, listener := range lm.statusListeners {
		if listener == ch {
			lm.statusListeners = append(lm.statusListeners[:i], lm.statusListeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

// Session returns the Bluetooth connection session
func (lm *LifecycleManager) Session() *bluetooth.Session {
	return lm.session
}

// Schedules returns the schedule repository
func (lm *LifecycleManager) Schedules() *schedule.Repository {
	return lm.repository
}

// Dispatcher returns the command dispatcher
func (lm *LifecycleManager) Dispatcher() *dispatch.Dispatcher {
	return lm.dispatcher
}

// Grades returns the grade profile loader
func (lm *LifecycleManager) Grades() *grades.ProfileLoader {
	return lm.gradeLoader
}
