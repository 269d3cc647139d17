// Package db is the ScyllaDB persistence layer.
package db

import (
	"context"
	"time"

	"github.com/gocql/gocql"
	"github.com/ntentasd/ecobin-api/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type DB struct {
	Meta *gocql.Session // devices, credentials
	Data *gocql.Session // readings, events, eco scores
}

func New(metaSess, dataSess *gocql.Session) *DB {
	return &DB{
		Meta: metaSess,
		Data: dataSess,
	}
}

// Connect opens one session per keyspace.
func Connect(nodes []string, metaKeyspace, dataKeyspace string) (*DB, error) {
	metaSess, err := session(nodes, metaKeyspace)
	if err != nil {
		return nil, err
	}
	dataSess, err := session(nodes, dataKeyspace)
	if err != nil {
		metaSess.Close()
		return nil, err
	}
	return New(metaSess, dataSess), nil
}

func session(nodes []string, keyspace string) (*gocql.Session, error) {
	cluster := gocql.NewCluster(nodes...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 2 * time.Second
	return cluster.CreateSession()
}

func (db *DB) Close() {
	if db.Meta != nil {
		db.Meta.Close()
	}
	if db.Data != nil {
		db.Data.Close()
	}
}

func startSpan(ctx context.Context, query string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("ecobin-db").Start(ctx, "db."+query)
	span.SetAttributes(
		attribute.String("db.system", metrics.ScyllaDb),
		attribute.String("db.query", query),
	)
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func observeRead(query string, start time.Time) {
	metrics.DbReadLatencySeconds.WithLabelValues(query).Observe(time.Since(start).Seconds())
}

// dayBuckets lists the UTC days touched by [from, to], oldest first.
func dayBuckets(from, to time.Time) []time.Time {
	from, to = from.UTC(), to.UTC()
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)

	var out []time.Time
	for date := start; !date.After(end); date = date.Add(24 * time.Hour) {
		out = append(out, date)
	}
	return out
}

func bucketOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
