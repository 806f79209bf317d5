package hmi

import "go.opentelemetry.io/otel"

const scopeName = "github.com/aretw0/hmi"

var tracer = otel.Tracer(scopeName)
