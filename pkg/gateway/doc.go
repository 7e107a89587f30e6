// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package gateway provides the MCP aggregation gateway.
//
// The gateway is a single front door for many independent backend tool
// servers. Backends are reached by spawning a child process (stdio), by
// dialling a remote HTTP endpoint, or by binding to an in-process tool set.
// Every backend tool is republished under a namespace prefix, every call is
// authenticated and authorized per tool, and every outcome lands in an
// audit log.
//
// # Layout
//
//	pkg/gateway/
//	├── types.go      // health states and snapshots shared by subpackages
//	├── config/       // backend descriptors, auth config, strict loading
//	├── auth/         // static tokens + JWT verification, scope checks
//	├── toolset/      // explicit tool registry for in-process backends
//	├── transport/    // stdio, HTTP and in-process connectors + probes
//	├── registry/     // backend lifecycle and health supervision
//	├── audit/        // bounded audit log (memory or Redis)
//	├── dispatcher/   // authenticate, resolve, authorize, forward, audit
//	└── server/       // MCP front door and introspection tools
//
// # Health
//
// Each connected backend with a non-zero health interval is supervised by
// its own goroutine. A failed probe moves a backend to Degraded; three
// consecutive failures quarantine it as Unhealthy. A successful probe
// always restores Healthy. Nothing reconnects a backend automatically;
// recovery from a dropped connection is an explicit Reconnect.
package gateway
