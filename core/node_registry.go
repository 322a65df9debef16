// Copyright (c) 2016-2022 Cristian Măgherușan-Stanciu
// Licensed under the Open Software License version 3.0

package spotnode

import (
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
)

// ErrNodeNotFound is returned when removing a node the scheduler doesn't know.
var ErrNodeNotFound = errors.New("node not found")

// Scheduler is the part of the host CI scheduler the nodes depend on.
type Scheduler interface {
	RemoveNode(node *SpotAgentNode) error
}

// The key in this map is the node name.
type nodeMap map[string]*SpotAgentNode

// NodeRegistry is an in-memory Scheduler keeping track of the provisioned
// nodes.
type NodeRegistry struct {
	sync.RWMutex
	catalog nodeMap
}

// NewNodeRegistry returns an empty registry.
func NewNodeRegistry() *NodeRegistry {
	return &NodeRegistry{catalog: nodeMap{}}
}

// dumpConfig prints the node fields instead of their String() names and
// stays out of the cloud connection internals.
var dumpConfig = spew.ConfigState{
	Indent:                  " ",
	DisableMethods:          true,
	DisablePointerAddresses: true,
	MaxDepth:                3,
}

func (r *NodeRegistry) dump() string {
	r.RLock()
	defer r.RUnlock()
	return dumpConfig.Sdump(r.catalog)
}

// Add registers the node, replacing any node with the same name.
func (r *NodeRegistry) Add(node *SpotAgentNode) {
	if node == nil {
		return
	}

	r.Lock()
	defer r.Unlock()
	r.catalog[node.Name()] = node
}

// Get returns nil for unknown names.
func (r *NodeRegistry) Get(name string) *SpotAgentNode {
	r.RLock()
	defer r.RUnlock()
	return r.catalog[name]
}

// RemoveNode implements Scheduler.
func (r *NodeRegistry) RemoveNode(node *SpotAgentNode) error {
	if node == nil {
		return ErrNodeNotFound
	}

	r.Lock()
	defer r.Unlock()

	if _, ok := r.catalog[node.Name()]; !ok {
		return errors.Wrap(ErrNodeNotFound, node.Name())
	}
	delete(r.catalog, node.Name())
	logger.WithField("node", node.Name()).Info("Removed node from the registry")
	return nil
}

// Count returns the number of registered nodes.
func (r *NodeRegistry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.catalog)
}

// Nodes iterates over a snapshot of the registered nodes, so the consumer may
// remove nodes while ranging over the channel.
// The channel must be drained.
func (r *NodeRegistry) Nodes() <-chan *SpotAgentNode {
	snapshot := r.list()

	retC := make(chan *SpotAgentNode)
	go func() {
		defer close(retC)
		for _, n := range snapshot {
			retC <- n
		}
	}()

	return retC
}

func (r *NodeRegistry) list() []*SpotAgentNode {
	r.RLock()
	defer r.RUnlock()

	nodes := make([]*SpotAgentNode, 0, len(r.catalog))
	for _, n := range r.catalog {
		nodes = append(nodes, n)
	}
	return nodes
}

// FindByInstanceID returns the node backed by the given instance. Nodes whose
// instance ID isn't resolved yet are looked up in EC2.
func (r *NodeRegistry) FindByInstanceID(id string) *SpotAgentNode {
	if id == "" {
		return nil
	}
	for _, n := range r.list() {
		if n.InstanceID() == id {
			return n
		}
	}
	return nil
}
