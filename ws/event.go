// Package ws, canlı akış (live feed) dinleyicisini barındırır.
//
// Mimari:
// - Event: Sunucu ↔ client arası iletilen mesaj formatı
// - Listener: Tek bir WebSocket bağlantısı; gelen mesaj event'lerini
//   cache store'a store API'si üzerinden uygular
//
// Event akışı:
// 1. Başka bir kullanıcı mesaj gönderir → sunucu message_create yayınlar
// 2. Listener event'i okur, seq'i kontrol eder (tekrar / kayıp tespiti)
// 3. Mesaj ilgili scope'un başına eklenir, yanıtsa root'un repliesCount'u artar
//
// Kendi mesajlarımız için gelen event'ler yok sayılır: onlar optimistic
// transaction'ların commit'i ile zaten yerinde.
package ws

import "encoding/json"

// Event, WebSocket üzerinden iletilen bir mesajı temsil eder.
//
// Op (operation): Event türü, "message_create", "heartbeat" vb.
// Data: Event'e özgü payload; türü Op'a göre çözülür.
// Seq (sequence number): Sunucunun her outbound event'e verdiği artan sayı.
//   Seq 5'ten sonra seq 7 gelirse, 6 kaybolmuş demektir.
type Event struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  int64           `json:"seq,omitempty"`
}

// Client → Server operasyonları
const (
	OpHeartbeat = "heartbeat" // Client her 30sn'de gönderir, "hâlâ bağlıyım" sinyali
)

// Server → Client operasyonları
const (
	OpHeartbeatAck  = "heartbeat_ack"  // Heartbeat'e yanıt
	OpMessageCreate = "message_create" // Yeni mesaj oluşturuldu
	OpMessageUpdate = "message_update" // Mesaj düzenlendi
	OpMessageDelete = "message_delete" // Mesaj silindi
)

// MessageDeleteData, message_delete payload'ı.
type MessageDeleteData struct {
	ID        string  `json:"id"`
	ChannelID string  `json:"channelId"`
	ThreadID  *string `json:"threadId,omitempty"`
}
