package main

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	serveWithWorker    bool
	serveWithScheduler bool

	migrateSteps int

	tokenSubject string
	tokenTTL     time.Duration
)

var (
	rootCmd = &cobra.Command{
		Use:           "chatlog",
		Short:         "Multi-tenant chat message log",
		Long:          "chatlog serves the chat API, runs the persistence workers and the count reconciliation sweeps.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API. Number allocation happens here; rows are written by
the workers. With TASK_DRIVER=memory the workers always run in this process.`,
		RunE: runServe,
	}

	workerCmd = &cobra.Command{
		Use:   "worker",
		Short: "Run the persistence workers",
		RunE:  runWorker,
	}

	schedulerCmd = &cobra.Command{
		Use:   "scheduler",
		Short: "Run the count reconciliation sweeps every SWEEP_INTERVAL",
		RunE:  runScheduler,
	}

	reconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Run both reconciliation sweeps once and print the results",
		RunE:  runReconcile,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	}

	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		RunE:  runMigrateDown,
	}

	migrateStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Print the applied schema version",
		RunE:  runMigrateStatus,
	}

	adminTokenCmd = &cobra.Command{
		Use:   "admin-token",
		Short: "Sign a token for the /admin endpoints with ADMIN_JWT_SECRET",
		RunE:  runAdminToken,
	}
)

func init() {
	serveCmd.Flags().BoolVar(&serveWithWorker, "with-worker", false, "also run the persistence workers")
	serveCmd.Flags().BoolVar(&serveWithScheduler, "with-scheduler", false, "also run the reconciliation sweeps")
	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(schedulerCmd)
	rootCmd.AddCommand(reconcileCmd)

	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	adminTokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "operator name recorded in the token")
	adminTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(adminTokenCmd)
}
