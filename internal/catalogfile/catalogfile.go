// Package catalogfile reads construction templates from YAML documents.
package catalogfile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Document is one model project with its phases, tasks and resources.
// Counties and cost subgroups are referenced by code.
type Document struct {
	Code        string  `yaml:"code"`
	Name        string  `yaml:"name"`
	Version     string  `yaml:"version"`
	County      string  `yaml:"county"`
	ProjectType string  `yaml:"project_type"`
	Description string  `yaml:"description"`
	Phases      []Phase `yaml:"phases"`
}

type Phase struct {
	Code               string   `yaml:"code"`
	Name               string   `yaml:"name"`
	Description        string   `yaml:"description"`
	Order              int      `yaml:"order"`
	DurationDays       int      `yaml:"duration_days"`
	RequiresInspection bool     `yaml:"requires_inspection"`
	Inactive           bool     `yaml:"inactive"`
	Prerequisites      []string `yaml:"prerequisites"`
	Tasks              []Task   `yaml:"tasks"`
}

type Task struct {
	Code             string          `yaml:"code"`
	Name             string          `yaml:"name"`
	Description      string          `yaml:"description"`
	Order            int             `yaml:"order"`
	DurationHours    decimal.Decimal `yaml:"duration_hours"`
	Cost             decimal.Decimal `yaml:"cost"`
	CostSubGroup     string          `yaml:"cost_subgroup"`
	RequiresApproval bool            `yaml:"requires_approval"`
	Inactive         bool            `yaml:"inactive"`
	Prerequisites    []string        `yaml:"prerequisites"`
	Resources        []Resource      `yaml:"resources"`
}

type Resource struct {
	Type         string          `yaml:"type"`
	Name         string          `yaml:"name"`
	Unit         string          `yaml:"unit"`
	Quantity     decimal.Decimal `yaml:"quantity"`
	UnitCost     decimal.Decimal `yaml:"unit_cost"`
	CostSubGroup string          `yaml:"cost_subgroup"`
}

func Parse(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parse template: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return doc, err
	}
	return doc, nil
}

func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	return Parse(data)
}

// Validate checks document structure: required fields, unique codes and orders per
// scope, and prerequisites that name a sibling.
func (d Document) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	if strings.TrimSpace(d.Code) == "" {
		add("code required")
	}
	if strings.TrimSpace(d.Name) == "" {
		add("name required")
	}
	if strings.TrimSpace(d.County) == "" {
		add("county required")
	}
	if strings.TrimSpace(d.ProjectType) == "" {
		add("project_type required")
	}
	phaseCodes := map[string]bool{}
	phaseOrders := map[int]bool{}
	for _, p := range d.Phases {
		if p.Code == "" {
			add("phase code required")
			continue
		}
		if phaseCodes[p.Code] {
			add("duplicate phase code %s", p.Code)
		}
		phaseCodes[p.Code] = true
		if p.Order < 1 {
			add("phase %s: order must be positive", p.Code)
		} else if phaseOrders[p.Order] {
			add("phase %s: duplicate order %d", p.Code, p.Order)
		}
		phaseOrders[p.Order] = true
		problems = append(problems, p.validateTasks()...)
	}
	for _, p := range d.Phases {
		for _, pre := range p.Prerequisites {
			if !phaseCodes[pre] {
				add("phase %s: unknown prerequisite %s", p.Code, pre)
			}
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func (p Phase) validateTasks() []string {
	var problems []string
	codes := map[string]bool{}
	orders := map[int]bool{}
	for _, t := range p.Tasks {
		if t.Code == "" {
			problems = append(problems, fmt.Sprintf("phase %s: task code required", p.Code))
			continue
		}
		if codes[t.Code] {
			problems = append(problems, fmt.Sprintf("phase %s: duplicate task code %s", p.Code, t.Code))
		}
		codes[t.Code] = true
		if t.Order < 1 {
			problems = append(problems, fmt.Sprintf("task %s/%s: order must be positive", p.Code, t.Code))
		} else if orders[t.Order] {
			problems = append(problems, fmt.Sprintf("task %s/%s: duplicate order %d", p.Code, t.Code, t.Order))
		}
		orders[t.Order] = true
	}
	for _, t := range p.Tasks {
		for _, pre := range t.Prerequisites {
			if !codes[pre] {
				problems = append(problems, fmt.Sprintf("task %s/%s: unknown prerequisite %s", p.Code, t.Code, pre))
			}
		}
	}
	return problems
}
