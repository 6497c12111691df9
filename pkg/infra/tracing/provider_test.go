package tracing

import (
	"context"
	"testing"
	"time"
)

func TestNewOptions(t *testing.T) {
	opts := NewOptions()

	if opts.Enabled {
		t.Error("Expected tracing to be disabled by default")
	}
	if opts.ServiceName != "virtual-ta" {
		t.Errorf("Expected service name to be 'virtual-ta', got %s", opts.ServiceName)
	}
	if opts.SamplerType != SamplerParentBased {
		t.Errorf("Expected sampler type to be parent-based, got %s", opts.SamplerType)
	}
}

func TestOptionsValidate(t *testing.T) {
	valid := func() *Options {
		o := NewOptions()
		o.Enabled = true
		return o
	}

	tests := []struct {
		name    string
		mutate  func(o *Options)
		wantErr bool
	}{
		{"defaults enabled", func(o *Options) {}, false},
		{"disabled ignores everything", func(o *Options) { o.Enabled = false; o.ServiceName = "" }, false},
		{"missing service name", func(o *Options) { o.ServiceName = "" }, true},
		{"missing endpoint", func(o *Options) { o.Endpoint = "" }, true},
		{"stdout needs no endpoint", func(o *Options) { o.ExporterType = ExporterStdout; o.Endpoint = "" }, false},
		{"invalid exporter", func(o *Options) { o.ExporterType = "zipkin" }, true},
		{"invalid sampler", func(o *Options) { o.SamplerType = "sometimes" }, true},
		{"ratio out of range", func(o *Options) { o.SamplerRatio = 1.5 }, true},
		{"zero batch timeout", func(o *Options) { o.BatchTimeout = 0 }, true},
		{"zero queue", func(o *Options) { o.MaxQueueSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid()
			tt.mutate(o)
			errs := o.Validate()
			if (len(errs) > 0) != tt.wantErr {
				t.Errorf("Validate() errs = %v, wantErr %v", errs, tt.wantErr)
			}
		})
	}
}

func TestNewProviderNoop(t *testing.T) {
	opts := NewOptions()
	opts.Enabled = true
	opts.ExporterType = ExporterNoop
	opts.SamplerType = SamplerAlwaysOn
	opts.BatchTimeout = 10 * time.Millisecond

	p, err := NewProvider(opts)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	ctx, span := StartSpan(context.Background(), "test", "op")
	if TraceIDFromContext(ctx) == "" {
		t.Error("expected an active trace id")
	}
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(nil)
	if err != nil {
		t.Fatalf("NewProvider(nil) error = %v", err)
	}
	if p.Tracer("x") == nil {
		t.Error("Tracer should never be nil")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
