// Showtrail - Watch History Achievement Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/showtrail

/*
Package websocket pushes earned badges and activity summaries to the
browser sessions of the user they belong to.

Key Components:

  - Hub: owns the set of connected clients and routes messages by user
  - Client: one connection with its read and write pumps
  - Relay: consumes the notification topics and hands messages to the hub

Architecture:

	notify.Publisher ──► Relay ──► Hub ──► Client (user u1)
	                                   └─► Client (user u1)
	                                   └─► Client (user u2)

A message addressed to a user reaches every connection of that user and
no other. A message without a user is delivered to everyone.

Message Types:

  - badge_earned: data is notify.BadgesEarned
  - activity: data is activity.Summary
  - ping / pong: keepalive initiated by the client

Each client has two goroutines:
  - readPump: reads from the connection and answers pings
  - writePump: writes queued messages and sends protocol pings

A client whose queue is full is disconnected rather than blocking the hub.
*/
package websocket
