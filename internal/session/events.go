package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Event types recorded by the manager.
const (
	EventCourseCreated  = "course_created"
	EventQuizCompleted  = "quiz_completed"
	EventLevelsAppended = "levels_appended"
	EventCourseDeleted  = "course_deleted"
	EventTriviaAnswered = "trivia_answered"
)

// Event represents an activity record persisted to the events table.
type Event struct {
	CourseID  string
	EventType string
	Data      map[string]any
	CreatedAt time.Time
}

// EventLogger defines event logging behavior.
type EventLogger interface {
	LogEvent(event Event) error
}

// NopEventLogger ignores all events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(Event) error {
	return nil
}

// MemoryEventLogger stores events in memory for tests.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{
		events: []Event{},
	}
}

func (l *MemoryEventLogger) LogEvent(event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// PostgresEventLogger inserts events into the events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

const eventsDBTimeout = 5 * time.Second

func NewPostgresEventLogger(ctx context.Context, pool *pgxpool.Pool) (*PostgresEventLogger, error) {
	if pool == nil {
		return nil, fmt.Errorf("event logger pool is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, eventsDBTimeout)
	defer cancel()
	_, err := pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS events (
			id bigserial PRIMARY KEY,
			course_id text NOT NULL DEFAULT '',
			event_type text NOT NULL,
			data jsonb NOT NULL DEFAULT '{}',
			created_at timestamptz NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return nil, fmt.Errorf("ensure events table: %w", err)
	}
	return &PostgresEventLogger{pool: pool}, nil
}

func (l *PostgresEventLogger) LogEvent(event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventsDBTimeout)
	defer cancel()

	_, err = l.pool.Exec(ctx,
		`INSERT INTO events (course_id, event_type, data, created_at)
		 VALUES ($1, $2, $3::jsonb, $4)`,
		event.CourseID,
		event.EventType,
		string(data),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.EventType,
		"course_id", event.CourseID,
	)
	return nil
}
