/*
 * Copyright 2025 Will Reeves and TouchStream Contributors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package discovery

import (
	"context"

	"github.com/touchstream/spoke/pkg/models"
)

// ConfigStore is the configuration surface the discovery endpoints need.
type ConfigStore interface {
	Load() map[string]any
	Update(payload map[string]any) map[string]any
	Snapshot() models.DeviceConfig
}

// Updater applies a software update in place. Called off the request path.
type Updater interface {
	Apply(ctx context.Context) error
}
