package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	// kiku://catalog — the data sources questions can be asked against.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"kiku://catalog",
			"Data Source Catalog",
			mcplib.WithResourceDescription("Data sources available for kiku_ask, with schema status"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleCatalog,
	)

	// kiku://catalog/{id} — one source with its table listing.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"kiku://catalog/{id}",
			"Data Source",
			mcplib.WithTemplateDescription("One data source with its table listing"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleCatalogEntry,
	)
}

func (s *Server) handleCatalog(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	entries, err := s.client.ListCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: list catalog: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal catalog: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "kiku://catalog",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleCatalogEntry(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	idStr := strings.TrimPrefix(uri, "kiku://catalog/")
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("mcp: invalid catalog URI %s: %w", uri, err)
	}

	entry, err := s.client.GetCatalogEntry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("mcp: catalog entry: %w", err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal entry: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
