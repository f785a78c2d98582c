package protocol

// Player state and movement packets.

func init() {
	register(0x04, "TimeUpdate", ServerToClient, func() Packet { return &TimeUpdate{} })
	register(0x06, "SpawnPosition", ServerToClient, func() Packet { return &SpawnPosition{} })
	register(0x07, "UseEntity", ClientToServer, func() Packet { return &UseEntity{} })
	register(0x08, "UpdateHealth", ServerToClient, func() Packet { return &UpdateHealth{} })
	register(0x09, "Respawn", ServerToClient, func() Packet { return &Respawn{} })
	register(0x0A, "Player", ClientToServer, func() Packet { return &Player{} })
	register(0x0B, "PlayerPosition", ClientToServer, func() Packet { return &PlayerPosition{} })
	register(0x0C, "PlayerLook", ClientToServer, func() Packet { return &PlayerLook{} })
	register(0x0D, "PlayerPositionLook", Bidirectional, func() Packet { return &PlayerPositionLook{} })
	register(0x0E, "PlayerDigging", ClientToServer, func() Packet { return &PlayerDigging{} })
	register(0x0F, "PlayerBlockPlacement", ClientToServer, func() Packet { return &PlayerBlockPlacement{} })
	register(0x10, "HeldItemChange", Bidirectional, func() Packet { return &HeldItemChange{} })
	register(0x11, "UseBed", ServerToClient, func() Packet { return &UseBed{} })
	register(0x12, "Animation", Bidirectional, func() Packet { return &Animation{} })
	register(0x13, "EntityAction", ClientToServer, func() Packet { return &EntityAction{} })
	register(0x2B, "SetExperience", ServerToClient, func() Packet { return &SetExperience{} })
	register(0x46, "ChangeGameState", ServerToClient, func() Packet { return &ChangeGameState{} })
	register(0xC8, "IncrementStatistic", ServerToClient, func() Packet { return &IncrementStatistic{} })
}

type TimeUpdate struct {
	WorldAge  int64
	TimeOfDay int64
}

func (*TimeUpdate) ID() byte { return 0x04 }

func (p *TimeUpdate) Marshal(io IO) {
	io.Int64("WorldAge", &p.WorldAge)
	io.Int64("TimeOfDay", &p.TimeOfDay)
}

type SpawnPosition struct {
	X, Y, Z int32
}

func (*SpawnPosition) ID() byte { return 0x06 }

func (p *SpawnPosition) Marshal(io IO) {
	io.Int32("X", &p.X)
	io.Int32("Y", &p.Y)
	io.Int32("Z", &p.Z)
}

type UseEntity struct {
	User      int32
	Target    int32
	LeftClick bool
}

func (*UseEntity) ID() byte { return 0x07 }

func (p *UseEntity) Marshal(io IO) {
	io.Int32("User", &p.User)
	io.Int32("Target", &p.Target)
	io.Bool("LeftClick", &p.LeftClick)
}

type UpdateHealth struct {
	Health         int16
	Food           int16
	FoodSaturation float32
}

func (*UpdateHealth) ID() byte { return 0x08 }

func (p *UpdateHealth) Marshal(io IO) {
	io.Int16("Health", &p.Health)
	io.Int16("Food", &p.Food)
	io.Float32("FoodSaturation", &p.FoodSaturation)
}

type Respawn struct {
	Dimension   int32
	Difficulty  int8
	GameMode    int8
	WorldHeight int16
	LevelType   string
}

func (*Respawn) ID() byte { return 0x09 }

func (p *Respawn) Marshal(io IO) {
	io.Int32("Dimension", &p.Dimension)
	io.Int8("Difficulty", &p.Difficulty)
	io.Int8("GameMode", &p.GameMode)
	io.Int16("WorldHeight", &p.WorldHeight)
	io.String("LevelType", &p.LevelType)
}

type Player struct {
	OnGround bool
}

func (*Player) ID() byte { return 0x0A }

func (p *Player) Marshal(io IO) {
	io.Bool("OnGround", &p.OnGround)
}

type PlayerPosition struct {
	X, Y, Stance, Z float64
	OnGround        bool
}

func (*PlayerPosition) ID() byte { return 0x0B }

func (p *PlayerPosition) Marshal(io IO) {
	io.Float64("X", &p.X)
	io.Float64("Y", &p.Y)
	io.Float64("Stance", &p.Stance)
	io.Float64("Z", &p.Z)
	io.Bool("OnGround", &p.OnGround)
}

type PlayerLook struct {
	Yaw, Pitch float32
	OnGround   bool
}

func (*PlayerLook) ID() byte { return 0x0C }

func (p *PlayerLook) Marshal(io IO) {
	io.Float32("Yaw", &p.Yaw)
	io.Float32("Pitch", &p.Pitch)
	io.Bool("OnGround", &p.OnGround)
}

// PlayerPositionLook is named after the client's field order. The server
// sends the second and third doubles the other way around (stance, then
// Y); the fields are relayed in wire order either way.
type PlayerPositionLook struct {
	X, Y, Stance, Z float64
	Yaw, Pitch      float32
	OnGround        bool
}

func (*PlayerPositionLook) ID() byte { return 0x0D }

func (p *PlayerPositionLook) Marshal(io IO) {
	io.Float64("X", &p.X)
	io.Float64("Y", &p.Y)
	io.Float64("Stance", &p.Stance)
	io.Float64("Z", &p.Z)
	io.Float32("Yaw", &p.Yaw)
	io.Float32("Pitch", &p.Pitch)
	io.Bool("OnGround", &p.OnGround)
}

type PlayerDigging struct {
	Status int8
	X      int32
	Y      uint8
	Z      int32
	Face   int8
}

func (*PlayerDigging) ID() byte { return 0x0E }

func (p *PlayerDigging) Marshal(io IO) {
	io.Int8("Status", &p.Status)
	io.Int32("X", &p.X)
	io.Uint8("Y", &p.Y)
	io.Int32("Z", &p.Z)
	io.Int8("Face", &p.Face)
}

type PlayerBlockPlacement struct {
	X                         int32
	Y                         uint8
	Z                         int32
	Direction                 int8
	HeldItem                  Slot
	CursorX, CursorY, CursorZ int8
}

func (*PlayerBlockPlacement) ID() byte { return 0x0F }

func (p *PlayerBlockPlacement) Marshal(io IO) {
	io.Int32("X", &p.X)
	io.Uint8("Y", &p.Y)
	io.Int32("Z", &p.Z)
	io.Int8("Direction", &p.Direction)
	io.Slot("HeldItem", &p.HeldItem)
	io.Int8("CursorX", &p.CursorX)
	io.Int8("CursorY", &p.CursorY)
	io.Int8("CursorZ", &p.CursorZ)
}

type HeldItemChange struct {
	SlotIndex int16
}

func (*HeldItemChange) ID() byte { return 0x10 }

func (p *HeldItemChange) Marshal(io IO) {
	io.Int16("SlotIndex", &p.SlotIndex)
}

type UseBed struct {
	EntityID int32
	Unknown  int8
	X        int32
	Y        uint8
	Z        int32
}

func (*UseBed) ID() byte { return 0x11 }

func (p *UseBed) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int8("Unknown", &p.Unknown)
	io.Int32("X", &p.X)
	io.Uint8("Y", &p.Y)
	io.Int32("Z", &p.Z)
}

type Animation struct {
	EntityID  int32
	Animation int8
}

func (*Animation) ID() byte { return 0x12 }

func (p *Animation) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int8("Animation", &p.Animation)
}

type EntityAction struct {
	EntityID int32
	Action   int8
}

func (*EntityAction) ID() byte { return 0x13 }

func (p *EntityAction) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int8("Action", &p.Action)
}

type SetExperience struct {
	ExperienceBar   float32
	Level           int16
	TotalExperience int16
}

func (*SetExperience) ID() byte { return 0x2B }

func (p *SetExperience) Marshal(io IO) {
	io.Float32("ExperienceBar", &p.ExperienceBar)
	io.Int16("Level", &p.Level)
	io.Int16("TotalExperience", &p.TotalExperience)
}

type ChangeGameState struct {
	Reason   int8
	GameMode int8
}

func (*ChangeGameState) ID() byte { return 0x46 }

func (p *ChangeGameState) Marshal(io IO) {
	io.Int8("Reason", &p.Reason)
	io.Int8("GameMode", &p.GameMode)
}

type IncrementStatistic struct {
	StatisticID int32
	Amount      int8
}

func (*IncrementStatistic) ID() byte { return 0xC8 }

func (p *IncrementStatistic) Marshal(io IO) {
	io.Int32("StatisticID", &p.StatisticID)
	io.Int8("Amount", &p.Amount)
}
