package protocol

// Connection, login, chat and client status packets.

func init() {
	register(IDKeepAlive, "KeepAlive", Bidirectional, func() Packet { return &KeepAlive{} })
	register(IDLoginRequest, "LoginRequest", ServerToClient, func() Packet { return &LoginRequest{} })
	register(IDHandshake, "Handshake", ClientToServer, func() Packet { return &Handshake{} })
	register(IDChatMessage, "ChatMessage", Bidirectional, func() Packet { return &ChatMessage{} })
	register(IDPlayerListItem, "PlayerListItem", ServerToClient, func() Packet { return &PlayerListItem{} })
	register(IDPlayerAbilities, "PlayerAbilities", Bidirectional, func() Packet { return &PlayerAbilities{} })
	register(IDTabComplete, "TabComplete", Bidirectional, func() Packet { return &TabComplete{} })
	register(IDClientSettings, "ClientSettings", ClientToServer, func() Packet { return &ClientSettings{} })
	register(IDClientStatuses, "ClientStatuses", ClientToServer, func() Packet { return &ClientStatuses{} })
	register(IDPluginMessage, "PluginMessage", Bidirectional, func() Packet { return &PluginMessage{} })
	register(IDEncryptionKeyResponse, "EncryptionKeyResponse", Bidirectional, func() Packet { return &EncryptionKeyResponse{} })
	register(IDEncryptionKeyRequest, "EncryptionKeyRequest", ServerToClient, func() Packet { return &EncryptionKeyRequest{} })
	register(IDDisconnect, "Disconnect", Bidirectional, func() Packet { return &Disconnect{} })
}

const (
	IDKeepAlive             byte = 0x00
	IDLoginRequest          byte = 0x01
	IDHandshake             byte = 0x02
	IDChatMessage           byte = 0x03
	IDPlayerListItem        byte = 0xC9
	IDPlayerAbilities       byte = 0xCA
	IDTabComplete           byte = 0xCB
	IDClientSettings        byte = 0xCC
	IDClientStatuses        byte = 0xCD
	IDPluginMessage         byte = 0xFA
	IDEncryptionKeyResponse byte = 0xFC
	IDEncryptionKeyRequest  byte = 0xFD
	IDDisconnect            byte = 0xFF
)

// shortBytes walks a byte array prefixed by an int16 length.
func shortBytes(io IO, name string, x *[]byte) {
	n := io.Len16(name+"Length", len(*x))
	io.Bytes(name, x, n)
}

type KeepAlive struct {
	KeepAliveID int32
}

func (*KeepAlive) ID() byte { return IDKeepAlive }

func (p *KeepAlive) Marshal(io IO) {
	io.Int32("KeepAliveID", &p.KeepAliveID)
}

// LoginRequest is sent by the server once the client is logged in.
type LoginRequest struct {
	EntityID   int32
	LevelType  string
	GameMode   int8
	Dimension  int8
	Difficulty int8
	Unused     int8
	MaxPlayers int8
}

func (*LoginRequest) ID() byte { return IDLoginRequest }

func (p *LoginRequest) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.String("LevelType", &p.LevelType)
	io.Int8("GameMode", &p.GameMode)
	io.Int8("Dimension", &p.Dimension)
	io.Int8("Difficulty", &p.Difficulty)
	io.Int8("Unused", &p.Unused)
	io.Int8("MaxPlayers", &p.MaxPlayers)
}

// Handshake is the first packet a client sends.
type Handshake struct {
	ProtocolVersion uint8
	Username        string
	ServerHost      string
	ServerPort      int32
}

func (*Handshake) ID() byte { return IDHandshake }

func (p *Handshake) Marshal(io IO) {
	io.Uint8("ProtocolVersion", &p.ProtocolVersion)
	io.String("Username", &p.Username)
	io.String("ServerHost", &p.ServerHost)
	io.Int32("ServerPort", &p.ServerPort)
}

type ChatMessage struct {
	Message string
}

func (*ChatMessage) ID() byte { return IDChatMessage }

func (p *ChatMessage) Marshal(io IO) {
	io.String("Message", &p.Message)
}

type PlayerListItem struct {
	PlayerName string
	Online     bool
	Ping       int16
}

func (*PlayerListItem) ID() byte { return IDPlayerListItem }

func (p *PlayerListItem) Marshal(io IO) {
	io.String("PlayerName", &p.PlayerName)
	io.Bool("Online", &p.Online)
	io.Int16("Ping", &p.Ping)
}

type PlayerAbilities struct {
	Flags        int8
	FlyingSpeed  int8
	WalkingSpeed int8
}

func (*PlayerAbilities) ID() byte { return IDPlayerAbilities }

func (p *PlayerAbilities) Marshal(io IO) {
	io.Int8("Flags", &p.Flags)
	io.Int8("FlyingSpeed", &p.FlyingSpeed)
	io.Int8("WalkingSpeed", &p.WalkingSpeed)
}

type TabComplete struct {
	Text string
}

func (*TabComplete) ID() byte { return IDTabComplete }

func (p *TabComplete) Marshal(io IO) {
	io.String("Text", &p.Text)
}

type ClientSettings struct {
	Locale       string
	ViewDistance int8
	ChatFlags    int8
	Difficulty   int8
	ShowCape     bool
}

func (*ClientSettings) ID() byte { return IDClientSettings }

func (p *ClientSettings) Marshal(io IO) {
	io.String("Locale", &p.Locale)
	io.Int8("ViewDistance", &p.ViewDistance)
	io.Int8("ChatFlags", &p.ChatFlags)
	io.Int8("Difficulty", &p.Difficulty)
	io.Bool("ShowCape", &p.ShowCape)
}

// ClientStatuses carries 0 for the initial spawn and 1 for a respawn.
type ClientStatuses struct {
	Payload int8
}

func (*ClientStatuses) ID() byte { return IDClientStatuses }

func (p *ClientStatuses) Marshal(io IO) {
	io.Int8("Payload", &p.Payload)
}

type PluginMessage struct {
	Channel string
	Data    []byte
}

func (*PluginMessage) ID() byte { return IDPluginMessage }

func (p *PluginMessage) Marshal(io IO) {
	io.String("Channel", &p.Channel)
	shortBytes(io, "Data", &p.Data)
}

// EncryptionKeyResponse carries the RSA-encrypted shared secret and
// verify token from the client. The server answers with both fields empty
// right before it switches to the encrypted stream.
type EncryptionKeyResponse struct {
	SharedSecret []byte
	VerifyToken  []byte
}

func (*EncryptionKeyResponse) ID() byte { return IDEncryptionKeyResponse }

func (p *EncryptionKeyResponse) Marshal(io IO) {
	shortBytes(io, "SharedSecret", &p.SharedSecret)
	shortBytes(io, "VerifyToken", &p.VerifyToken)
}

// EncryptionKeyRequest offers the server's DER encoded public key.
type EncryptionKeyRequest struct {
	ServerID    string
	PublicKey   []byte
	VerifyToken []byte
}

func (*EncryptionKeyRequest) ID() byte { return IDEncryptionKeyRequest }

func (p *EncryptionKeyRequest) Marshal(io IO) {
	io.String("ServerID", &p.ServerID)
	shortBytes(io, "PublicKey", &p.PublicKey)
	shortBytes(io, "VerifyToken", &p.VerifyToken)
}

type Disconnect struct {
	Reason string
}

func (*Disconnect) ID() byte { return IDDisconnect }

func (p *Disconnect) Marshal(io IO) {
	io.String("Reason", &p.Reason)
}
