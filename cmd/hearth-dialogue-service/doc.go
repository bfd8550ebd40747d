// Copyright 2026 The Hearth Authors
// SPDX-License-Identifier: Apache-2.0

// The hearth-dialogue-service binary runs thermostat support
// conversations over a CBOR unix socket API.
//
// It owns the dialogue engine, the knowledge base, the LLM provider,
// the sqlite ticket store, and the transcript archiver. Clients (the
// hearth CLI, the viewer) talk to it through lib/service.Client.
//
// Socket actions:
//
//	status          liveness (uptime only)
//	info            session, ticket, and knowledge-base counts
//	dialogue/start  open a conversation, returns id and greeting
//	dialogue/turn   apply one user input to a conversation
//	dialogue/ticket fetch the ticket a conversation produced
//	ticket/list     list stored tickets, newest first
//	ticket/get      fetch one stored ticket by id
//	kb/search       query the knowledge-base retrieval index
package main
