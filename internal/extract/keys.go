package extract

import (
	"strings"

	"timesheet-reconciliation-service/internal/models"
	"timesheet-reconciliation-service/pkg/errors"
)

// DefaultClientField is the semantic name whose key component comes from the ClientExtractor
const DefaultClientField = "Client"

// Matchable is a record prepared for matching. It lives for one run only.
type Matchable struct {
	System models.System
	Record *models.Record
	Client string
	Key    string
}

// KeyBuilder builds composite join keys from each system's formula
type KeyBuilder struct {
	rules       map[models.System]*models.CompositeKeyRule
	resolver    *FieldResolver
	extractor   *ClientExtractor
	clientField string
	clientMap   models.ClientMap
}

// KeyOption customizes a KeyBuilder
type KeyOption func(*KeyBuilder)

// WithClientMap translates Timesheet client ids into the Planning namespace
// before they enter the key
func WithClientMap(m models.ClientMap) KeyOption {
	return func(kb *KeyBuilder) {
		kb.clientMap = m
	}
}

// WithClientField overrides the semantic name of the client component
func WithClientField(name string) KeyOption {
	return func(kb *KeyBuilder) {
		if name != "" {
			kb.clientField = name
		}
	}
}

// NewKeyBuilder resolves the composite key rule of each system. A system with
// more than one active rule fails here with AmbiguousRuleError, so the
// problem surfaces before any record is keyed.
func NewKeyBuilder(rs *models.RuleSet, extractor *ClientExtractor, opts ...KeyOption) (*KeyBuilder, error) {
	kb := &KeyBuilder{
		rules:       make(map[models.System]*models.CompositeKeyRule),
		resolver:    NewFieldResolver(rs),
		extractor:   extractor,
		clientField: DefaultClientField,
	}
	for _, opt := range opts {
		opt(kb)
	}

	for _, system := range []models.System{models.SystemTimesheet, models.SystemPlanning} {
		rules := rs.CompositeKeysFor(system)
		switch {
		case len(rules) == 1:
			kb.rules[system] = rules[0]
		case len(rules) > 1:
			ids := make([]string, len(rules))
			for i, r := range rules {
				ids[i] = r.ID
			}
			return nil, errors.AmbiguousRuleError(string(system), ids)
		}
	}

	return kb, nil
}

// Rule returns the composite key rule used for system
func (kb *KeyBuilder) Rule(system models.System) (*models.CompositeKeyRule, bool) {
	r, ok := kb.rules[system]
	return r, ok
}

// Resolver exposes the field resolver shared with the matcher
func (kb *KeyBuilder) Resolver() *FieldResolver {
	return kb.resolver
}

// Build returns the composite key of r: the formula's fields in declared
// order joined with ".".
func (kb *KeyBuilder) Build(system models.System, r *models.Record) (string, error) {
	m, err := kb.Prepare(system, r)
	if err != nil {
		return "", err
	}
	return m.Key, nil
}

// Prepare extracts the client and builds the key of r in one pass
func (kb *KeyBuilder) Prepare(system models.System, r *models.Record) (*Matchable, error) {
	rule, ok := kb.rules[system]
	if !ok {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "composite key rule for "+string(system), nil, nil)
	}

	m := &Matchable{System: system, Record: r}
	clientDone := false
	parts := make([]string, len(rule.Formula))

	for i, name := range rule.Formula {
		if kb.resolver.Semantic(system, name) == kb.clientField {
			if !clientDone {
				client, err := kb.client(system, r)
				if err != nil {
					return nil, err
				}
				m.Client = client
				clientDone = true
			}
			parts[i] = m.Client
			continue
		}

		v, err := kb.resolver.Value(system, name, r)
		if err != nil {
			return nil, err
		}
		parts[i] = v
	}

	// Reports show the client even when the formula does not use it
	if !clientDone {
		if client, err := kb.client(system, r); err == nil {
			m.Client = client
		}
	}

	m.Key = strings.Join(parts, models.KeySeparator)
	return m, nil
}

func (kb *KeyBuilder) client(system models.System, r *models.Record) (string, error) {
	client, err := kb.extractor.Extract(system, r)
	if err != nil {
		return "", err
	}
	if system == models.SystemTimesheet && kb.clientMap != nil {
		client = kb.clientMap.Translate(client)
	}
	return client, nil
}
