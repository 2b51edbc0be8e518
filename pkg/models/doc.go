// Package models defines the database tables written by the gateway.
package models
