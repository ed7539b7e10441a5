// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/mysqlctl/internal/commands/shared"
	"github.com/tombee/mysqlctl/internal/lifecycle"
	"github.com/tombee/mysqlctl/internal/log"
	"github.com/tombee/mysqlctl/internal/mysql"
	"github.com/tombee/mysqlctl/internal/tracing"
)

const metricsShutdownTimeout = 5 * time.Second

type runFlags struct {
	instance    shared.InstanceFlags
	metricsAddr string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [datadir]",
		Short: "Run an instance in the foreground",
		Long: `Start an instance and supervise it until it exits or mysqlctl receives
SIGINT or SIGTERM, in which case the instance is shut down first.

With --metrics-addr, Prometheus metrics are served on /metrics and the
instance state on /healthz.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, &flags)
		},
	}
	flags.instance.Register(cmd.Flags())
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve metrics on this address (default from config)")

	return cmd
}

func runRun(cmd *cobra.Command, args []string, flags *runFlags) error {
	env, err := shared.Setup(cmd.Context())
	if err != nil {
		return err
	}
	defer env.Close(context.Background())

	srv, err := env.Server()
	if err != nil {
		return err
	}
	dataDir, err := env.DataDir(args)
	if err != nil {
		return err
	}

	// Signals run the shutdown hooks, which stop the instance, before ctx ends.
	ctx, cancel := lifecycle.NotifyShutdown(cmd.Context(), env.Logger)
	defer cancel()
	defer func() {
		hookCtx, hookCancel := context.WithTimeout(context.Background(), env.Config.Shutdown.Timeout)
		defer hookCancel()
		if err := lifecycle.RunShutdownHooks(hookCtx); err != nil {
			env.Logger.Warn("shutdown hooks failed", log.Error(err))
		}
	}()

	spec := flags.instance.Spec(env.Config).WithOption(mysql.AutoShutdown)
	startCtx, startCancel := shared.WithTimeout(ctx, flags.instance.StartupTimeout(env.Config))
	sup, err := srv.Start(startCtx, dataDir, spec)
	startCancel()
	if err != nil {
		return shared.Classify("failed to start instance", err)
	}

	addr := flags.metricsAddr
	if addr == "" {
		addr = env.Config.Metrics.Addr
	}
	if addr != "" {
		stop, err := serveMetrics(addr, env.Provider, sup, env.Logger)
		if err != nil {
			return shared.NewUsageError("failed to serve metrics", err)
		}
		defer stop()
	}

	info := instanceInfo(sup, spec.Port)
	if shared.GetJSON() {
		if err := shared.EmitJSON(cmd.OutOrStdout(), struct {
			shared.JSONResponse
			Instance InstanceInfo `json:"instance"`
		}{shared.NewJSONResponse("run", true), info}); err != nil {
			return err
		}
	} else if !shared.GetQuiet() {
		fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Running instance in %s (pid %d), press Ctrl+C to stop", info.DataDir, info.PID)))
	}

	select {
	case <-sup.Done():
		if code := sup.ExitCode(); code != 0 {
			return &shared.ExitError{
				Code:    shared.ExitFailure,
				Message: fmt.Sprintf("instance in %s exited with code %d", sup.DataDir(), code),
			}
		}
		env.Logger.Info("instance exited")
		return nil
	case <-ctx.Done():
		// The hooks ran first; wait for the exit they requested.
		waitCtx, waitCancel := context.WithTimeout(context.Background(), env.Config.Shutdown.Timeout)
		defer waitCancel()
		if err := sup.Shutdown(waitCtx); err != nil {
			return shared.Classify("failed to stop instance", err)
		}
		if !shared.GetQuiet() && !shared.GetJSON() {
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK("Stopped instance in "+sup.DataDir()))
		}
		return nil
	}
}

// serveMetrics serves /metrics and /healthz on addr until stop is called.
func serveMetrics(addr string, provider *tracing.Provider, sup *lifecycle.Supervisor, logger *slog.Logger) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", provider.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		state := sup.State()
		if state != lifecycle.StateRunning {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintln(w, state.String())
	})

	server := &http.Server{
		Handler:           log.NewHTTPMiddleware(logger).Wrap(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", log.Error(err))
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}
