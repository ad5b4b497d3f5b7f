package registry

import "context"

// ToolRegistry stores published tool descriptors.
type ToolRegistry interface {
	// GetTool returns the definition published under toolName.
	// Returns nil if no such tool has been published.
	GetTool(ctx context.Context, toolName string) (*ToolDefinition, error)

	// ListTools returns the definitions of one namespace, or all when
	// namespace is empty, ordered by tool name.
	ListTools(ctx context.Context, namespace string) ([]*ToolDefinition, error)

	// Publish upserts defs and reports how many rows changed.
	Publish(ctx context.Context, defs []*ToolDefinition) (int, error)
}
