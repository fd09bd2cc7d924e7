// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gobwas/glob"
)

// configValidate is the validator instance for Config.
// Initialized in init() with custom validators.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
	_ = configValidate.RegisterValidation("globpattern", validateGlob)
}

// validateGlob accepts patterns the scan walker can compile.
func validateGlob(fl validator.FieldLevel) bool {
	_, err := glob.Compile(fl.Field().String(), '/')
	return err == nil
}

// Validate checks struct tags and then the rules spanning fields.
//
// Outputs:
//   - error: Wraps ErrInvalidConfig and names every failing field.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Observability.TraceExporter == "otlp" && c.Observability.OTLPEndpoint == "" {
		return fmt.Errorf("%w: otlp_endpoint is required when trace_exporter is otlp", ErrInvalidConfig)
	}
	if c.Watch.MetricsAddr != "" && c.Observability.MetricExporter != "prometheus" {
		return fmt.Errorf("%w: metrics_addr requires metric_exporter prometheus", ErrInvalidConfig)
	}
	return nil
}
