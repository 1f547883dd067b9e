package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/config"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/domain/doctor"
	v1 "github.com/dmehra2102/prod-golang-projects/clinicflow/internal/handler/v1"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/repository/memory"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/repository/postgres"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/internal/service"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/logger"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/clinicflow/pkg/tracer"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinicflow",
		Short: "Clinic appointment scheduling API",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			demo, _ := cmd.Flags().GetBool("demo-doctors")
			return runServer(demo)
		},
	}
	cmd.Flags().Bool("demo-doctors", false, "Seed two doctors when STORE_DRIVER=memory")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create schemas, tables and overlap constraints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			db, err := database.Connect(cfg.Database)
			if err != nil {
				return err
			}
			return database.Migrate(db, log)
		},
	}
}

func doctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Manage the doctor directory",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a doctor to the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			db, err := database.Connect(cfg.Database)
			if err != nil {
				return err
			}

			first, _ := cmd.Flags().GetString("first-name")
			last, _ := cmd.Flags().GetString("last-name")
			specialty, _ := cmd.Flags().GetString("specialty")
			license, _ := cmd.Flags().GetString("license")

			d := &doctor.Doctor{
				ID:            uuid.New(),
				FirstName:     first,
				LastName:      last,
				Specialty:     specialty,
				LicenseNumber: license,
			}
			if err := db.WithContext(cmd.Context()).Create(d).Error; err != nil {
				return fmt.Errorf("creating doctor: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.ID)
			return nil
		},
	}
	addCmd.Flags().String("first-name", "", "First name")
	addCmd.Flags().String("last-name", "", "Last name")
	addCmd.Flags().String("specialty", "", "Specialty")
	addCmd.Flags().String("license", "", "License number")
	_ = addCmd.MarkFlagRequired("last-name")
	_ = addCmd.MarkFlagRequired("license")
	cmd.AddCommand(addCmd)

	return cmd
}

// tokenCmd mints an access token for local testing. Issuing tokens to real users
// is the identity provider's job.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.App.Environment == "production" {
				return errors.New("token minting is disabled in production")
			}

			role, _ := cmd.Flags().GetString("role")
			email, _ := cmd.Flags().GetString("email")
			patient, _ := cmd.Flags().GetString("patient-id")

			claims := &domain.Claims{UserID: uuid.New(), Email: email, Role: domain.Role(role)}
			if patient != "" {
				id, err := uuid.Parse(patient)
				if err != nil {
					return fmt.Errorf("parsing patient-id: %w", err)
				}
				claims.PatientID = &id
			}

			token, _, err := auth.NewIssuer(cfg.JWT).Issue(claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("role", string(domain.RoleReceptionist), "admin, doctor, receptionist or patient")
	cmd.Flags().String("email", "dev@clinicflow.local", "Email claim")
	cmd.Flags().String("patient-id", "", "Patient id claim, required for role=patient")
	return cmd
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

type stores struct {
	appointments appointment.Repository
	doctors      doctor.Directory
	audit        service.AuditRepository
}

func openStores(cfg *config.Config, m *metrics.Collector, log *zap.Logger, demo bool) (*stores, *gorm.DB, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		doctors := memory.NewDoctorRepository()
		if demo {
			doctors.Add(doctor.Doctor{FirstName: "Ada", LastName: "Okafor", Specialty: "General Practice", LicenseNumber: "GP-0001"})
			doctors.Add(doctor.Doctor{FirstName: "Lin", LastName: "Moreau", Specialty: "Pediatrics", LicenseNumber: "PD-0002"})
		}
		log.Warn("using in-memory store; data is lost on restart")
		return &stores{
			appointments: memory.NewAppointmentRepository(m),
			doctors:      doctors,
			audit:        memory.NewAuditRepository(),
		}, nil, nil
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(db, log); err != nil {
		return nil, nil, err
	}
	return &stores{
		appointments: postgres.NewAppointmentRepository(db, m),
		doctors:      postgres.NewDoctorRepository(db),
		audit:        postgres.NewAuditRepository(db),
	}, db, nil
}

func runServer(demo bool) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	log.Info("starting clinicflow",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("store", cfg.Store.Driver),
		zap.String("timezone", cfg.Scheduling.TimeZone),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracer.Init(ctx, cfg.Tracing, cfg.App.Version)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	m := metrics.NewCollector("clinicflow")

	st, db, err := openStores(cfg, m, log, demo)
	if err != nil {
		return err
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
	}

	auditSvc := service.NewAuditService(st.audit, m, log)
	defer auditSvc.Shutdown(10 * time.Second)

	appointmentSvc := service.NewAppointmentService(
		st.appointments, st.doctors, auditSvc, m, cfg.Scheduling.Location(), log,
	)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := v1.NewRouter(v1.RouterDeps{
		Appointments: appointmentSvc,
		Tokens:       auth.NewIssuer(cfg.JWT),
		Metrics:      m,
		RateLimiter:  v1.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize),
		Log:          log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
