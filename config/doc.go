// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package config loads catalogfed configuration from defaults, a YAML file
// and CATALOGFED_* environment variables, validates it with struct tags plus
// cross-field checks, and can watch the file to hand fresh source lists to a
// running engine.
package config
