package ws

import "github.com/radieske/objective-bet-platform/pkg/contracts/events"

// ClientMsg representa uma mensagem recebida do cliente WebSocket
type ClientMsg struct {
	Type    string `json:"type"`    // subscribe | unsubscribe | ping
	MatchID string `json:"matchId"` // requerido em subscribe/unsubscribe
}

// MatchUpdate é o envelope enviado aos clientes inscritos na partida
type MatchUpdate struct {
	Type    string             `json:"type"` // sempre "match_update"
	MatchID string             `json:"matchId"`
	Payload events.MatchUpdate `json:"payload"`
}
