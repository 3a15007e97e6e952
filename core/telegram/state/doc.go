// Package state tracks the one pending conversation step per chat.
// Pending steps live in memory only and are lost on restart.
package state
