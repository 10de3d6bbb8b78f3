// Copyright 2025 Google LLC
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

package backprop

import "log/slog"

type (
	// Option configures the planning of a backpropagation.
	Option func(*config)

	config struct {
		logger  *slog.Logger
		pruning bool
	}
)

func newConfig(opts []Option) config {
	cfg := config{
		logger:  slog.Default(),
		pruning: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithLogger sets the logger used to report plan statistics.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithoutPruning disables the requirement analysis: every monomial
// with a total order not greater than the maximum order of the
// requested roots is propagated.
func WithoutPruning() Option {
	return func(cfg *config) {
		cfg.pruning = false
	}
}
