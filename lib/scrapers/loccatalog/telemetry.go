package loccatalog

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("tocfetch.lib.scrapers.loccatalog")
