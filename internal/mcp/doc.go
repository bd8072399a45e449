// Package mcp connects to Model Context Protocol servers and exposes their
// tools to the chat models as eino tools.
//
// A Client holds sessions with several servers. Tool names are prefixed with
// the sanitized server name, so the "web_search" tool of the "search" server
// is offered to the model as "search_web_search".
//
// Remote servers are tried with the streamable HTTP transport first and
// fall back to SSE. Local servers are spawned as a subprocess and spoken to
// over stdio.
//
// A Provisioner acquires a ToolSet for one tool phase: it connects the
// configured servers, filters tools by the configured glob patterns and
// hands back invokable tools plus a Close that tears the connections down.
//
//	set, err := provisioner.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	defer set.Close()
package mcp
