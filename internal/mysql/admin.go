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

package mysql

import (
	"context"
	"log/slog"

	"github.com/tombee/mysqlctl/internal/lifecycle"
)

// Admin controls an instance through mysqladmin over its Unix socket.
// It implements lifecycle.Controller.
type Admin struct {
	binary  string
	dataDir string
	spawner *lifecycle.Spawner
	logger  *slog.Logger
}

var _ lifecycle.Controller = (*Admin)(nil)

// Ping runs mysqladmin ping and reports whether it exited with code 0.
func (a *Admin) Ping(ctx context.Context) bool {
	_, err := a.spawner.Run(ctx, a.binary, adminArgs(a.dataDir, "ping")...)
	recordAdminCommand("ping", err)
	if err != nil {
		a.logger.Debug("ping failed", "error", err)
		return false
	}
	return true
}

// Shutdown runs mysqladmin shutdown. It returns once the server accepted
// the request.
func (a *Admin) Shutdown(ctx context.Context) error {
	_, err := a.spawner.Run(ctx, a.binary, adminArgs(a.dataDir, "shutdown")...)
	recordAdminCommand("shutdown", err)
	return err
}
