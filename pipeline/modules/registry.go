// Copyright 2026 The pktpipe Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package modules contains the module classes of pktpipe and builds
// pipelines from their configuration.
//
// Every class registers a constructor under its name. Constructors receive
// the module arguments as decoded from the TOML configuration, e.g.
//
//	[[modules]]
//	name = "fwd"
//	class = "L2Forward"
//	args = { default_gate = 0, hasher = "xxhash" }
package modules

import (
	"errors"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"

	"github.com/pktpipe/pktpipe/pipeline"
	"github.com/pktpipe/pktpipe/pkg/metrics/v2"
	"github.com/pktpipe/pktpipe/pkg/private/serrors"
)

var (
	// ErrUnknownClass indicates that no constructor is registered for a
	// class name.
	ErrUnknownClass = errors.New("unknown module class")
	// ErrInvalidArgs indicates malformed module arguments.
	ErrInvalidArgs = errors.New("invalid module arguments")
)

// Args are the raw arguments of a module.
type Args map[string]any

// Options are passed to every constructor.
type Options struct {
	// Metrics configure the registry of module level metrics.
	Metrics []metrics.Option
	// Dir is the directory relative file arguments are resolved against.
	Dir string
	// BatchSize is the default batch size of sources.
	BatchSize int
	// Hasher is the default hasher of lookup tables.
	Hasher string
}

// Constructor creates the processor of a module class.
type Constructor func(args Args, opts Options) (pipeline.Processor, error)

// Class describes a registered module class.
type Class struct {
	Name string `json:"name"`
	Help string `json:"help"`
	ctor Constructor
}

var (
	mu      sync.RWMutex
	classes = map[string]Class{}
)

// Register registers a constructor for class. It panics if class is
// registered twice.
func Register(class, help string, ctor Constructor) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := classes[class]; ok {
		panic("module class registered twice: " + class)
	}
	classes[class] = Class{Name: class, Help: help, ctor: ctor}
}

// New creates a processor of the given class.
func New(class string, args Args, opts Options) (pipeline.Processor, error) {
	mu.RLock()
	c, ok := classes[class]
	mu.RUnlock()
	if !ok {
		return nil, serrors.JoinNoStack(ErrUnknownClass, nil, "class", class)
	}
	proc, err := c.ctor(args, opts)
	if err != nil {
		return nil, serrors.Wrap("creating module", err, "class", class)
	}
	return proc, nil
}

// Classes returns the registered classes sorted by name.
func Classes() []Class {
	mu.RLock()
	defer mu.RUnlock()
	list := make([]Class, 0, len(classes))
	for _, c := range classes {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// decode decodes args into v. Unknown keys are rejected.
func decode(args Args, v any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused: true,
		TagName:     "toml",
		Result:      v,
	})
	if err != nil {
		return serrors.Wrap("creating decoder", err)
	}
	if err := dec.Decode(map[string]any(args)); err != nil {
		return serrors.JoinNoStack(ErrInvalidArgs, err)
	}
	return nil
}

// Spec declares a module in the configuration.
type Spec struct {
	Name  string `toml:"name"`
	Class string `toml:"class"`
	Args  Args   `toml:"args,omitempty"`
}

// Link declares a connection in the configuration.
type Link struct {
	From  string `toml:"from"`
	OGate int    `toml:"ogate"`
	To    string `toml:"to"`
	IGate int    `toml:"igate"`
}

// Build adds the modules to p and connects them. It does not compute the
// metadata offsets.
func Build(p *pipeline.Pipeline, specs []Spec, links []Link, opts Options) error {
	for _, s := range specs {
		proc, err := New(s.Class, s.Args, opts)
		if err != nil {
			return serrors.Wrap("building module", err, "module", s.Name)
		}
		if _, err := p.AddModule(s.Name, s.Class, proc); err != nil {
			if d, ok := proc.(pipeline.Deinitializer); ok {
				d.Deinit()
			}
			return err
		}
	}
	for _, l := range links {
		if err := p.Connect(l.From, l.OGate, l.To, l.IGate); err != nil {
			return serrors.Wrap("connecting modules", err, "from", l.From, "ogate", l.OGate,
				"to", l.To, "igate", l.IGate)
		}
	}
	return nil
}
