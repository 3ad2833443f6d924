package config

import (
	"time"

	"github.com/gyaneshwarpardhi/opsalert/internal/user"
)

// Config is the top-level YAML structure.
type Config struct {
	Version    string      `yaml:"version"`
	Engine     EngineConf  `yaml:"engine"`
	Thresholds Thresholds  `yaml:"thresholds"`
	Mail       MailConf    `yaml:"mail"`
	Routing    RoutingConf `yaml:"routing"`
	// Users seeds the in-memory directory when no database is configured.
	Users []user.User `yaml:"users"`
}

// EngineConf holds queue and worker settings.
type EngineConf struct {
	Workers        map[string]int `yaml:"workers"` // queue name -> worker count
	DefaultWorkers int            `yaml:"default_workers"`
	QueueDepth     int            `yaml:"queue_depth"`
	JobTimeoutMs   int            `yaml:"job_timeout_ms"`
	EmailTimeoutMs int            `yaml:"email_timeout_ms"`
	BackoffBaseMs  int            `yaml:"backoff_base_ms"`
	BackoffCapMs   int            `yaml:"backoff_cap_ms"`
}

// WorkersFor returns the worker count configured for a queue.
func (e EngineConf) WorkersFor(queue string) int {
	if n, ok := e.Workers[queue]; ok && n > 0 {
		return n
	}
	return e.DefaultWorkers
}

func (e EngineConf) JobTimeout() time.Duration {
	return time.Duration(e.JobTimeoutMs) * time.Millisecond
}

func (e EngineConf) EmailTimeout() time.Duration {
	return time.Duration(e.EmailTimeoutMs) * time.Millisecond
}

// Thresholds overrides pattern detection limits by indicator name.
type Thresholds struct {
	Patterns map[string]PatternConf `yaml:"patterns"`
}

// PatternConf is "at least Count occurrences within Window".
type PatternConf struct {
	Count  int           `yaml:"count"`
	Window time.Duration `yaml:"window"`
}

// MailConf selects the sender identity and provider order.
type MailConf struct {
	From         string   `yaml:"from"`
	Providers    []string `yaml:"providers"`
	DashboardURL string   `yaml:"dashboard_url"`
}

// RoutingConf is the recipient rule table.
type RoutingConf struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Scenario is an entry point that filters alerts by type and category.
// Empty filters match every alert.
type Scenario struct {
	ID          string    `yaml:"id"`
	Description string    `yaml:"description"`
	Enabled     bool      `yaml:"enabled"`
	Types       []string  `yaml:"types"`
	Categories  []string  `yaml:"categories"`
	Children    []NodeRef `yaml:"children"`
}

// NodeRef is a discriminated union: exactly one of Condition or Rule is set.
type NodeRef struct {
	Condition *ConditionDef `yaml:"condition,omitempty"`
	Rule      *RuleDef      `yaml:"rule,omitempty"`
}

// ConditionDef holds an expression and nested children.
type ConditionDef struct {
	ID         string    `yaml:"id"`
	Expression string    `yaml:"expression"`
	Children   []NodeRef `yaml:"children"`
}

// RuleDef is a leaf naming who receives the alert.
type RuleDef struct {
	ID       string   `yaml:"id"`
	Roles    []string `yaml:"roles"`
	Subjects []string `yaml:"subjects"`
}

// Subject selectors understood by rules.
const (
	SubjectInitiator        = "initiator"
	SubjectInitiatorManager = "initiator_manager"
)
