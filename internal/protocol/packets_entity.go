package protocol

// Entity spawn, movement and state packets. All are sent by the server.

func init() {
	register(0x05, "EntityEquipment", ServerToClient, func() Packet { return &EntityEquipment{} })
	register(0x14, "SpawnNamedEntity", ServerToClient, func() Packet { return &SpawnNamedEntity{} })
	register(0x16, "CollectItem", ServerToClient, func() Packet { return &CollectItem{} })
	register(0x17, "SpawnObject", ServerToClient, func() Packet { return &SpawnObject{} })
	register(0x18, "SpawnMob", ServerToClient, func() Packet { return &SpawnMob{} })
	register(0x19, "SpawnPainting", ServerToClient, func() Packet { return &SpawnPainting{} })
	register(0x1A, "SpawnExperienceOrb", ServerToClient, func() Packet { return &SpawnExperienceOrb{} })
	register(0x1C, "EntityVelocity", ServerToClient, func() Packet { return &EntityVelocity{} })
	register(0x1D, "DestroyEntity", ServerToClient, func() Packet { return &DestroyEntity{} })
	register(0x1E, "Entity", ServerToClient, func() Packet { return &Entity{} })
	register(0x1F, "EntityRelativeMove", ServerToClient, func() Packet { return &EntityRelativeMove{} })
	register(0x20, "EntityLook", ServerToClient, func() Packet { return &EntityLook{} })
	register(0x21, "EntityLookRelativeMove", ServerToClient, func() Packet { return &EntityLookRelativeMove{} })
	register(0x22, "EntityTeleport", ServerToClient, func() Packet { return &EntityTeleport{} })
	register(0x23, "EntityHeadLook", ServerToClient, func() Packet { return &EntityHeadLook{} })
	register(0x26, "EntityStatus", ServerToClient, func() Packet { return &EntityStatus{} })
	register(0x27, "AttachEntity", ServerToClient, func() Packet { return &AttachEntity{} })
	register(0x28, "EntityMetadata", ServerToClient, func() Packet { return &EntityMetadata{} })
	register(0x29, "EntityEffect", ServerToClient, func() Packet { return &EntityEffect{} })
	register(0x2A, "RemoveEntityEffect", ServerToClient, func() Packet { return &RemoveEntityEffect{} })
	register(0x47, "SpawnGlobalEntity", ServerToClient, func() Packet { return &SpawnGlobalEntity{} })
}

type EntityEquipment struct {
	EntityID  int32
	SlotIndex int16
	Item      Slot
}

func (*EntityEquipment) ID() byte { return 0x05 }

func (p *EntityEquipment) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int16("SlotIndex", &p.SlotIndex)
	io.Slot("Item", &p.Item)
}

type SpawnNamedEntity struct {
	EntityID    int32
	PlayerName  string
	X, Y, Z     int32
	Yaw, Pitch  int8
	CurrentItem int16
	Metadata    Metadata
}

func (*SpawnNamedEntity) ID() byte { return 0x14 }

func (p *SpawnNamedEntity) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.String("PlayerName", &p.PlayerName)
	io.Int32("X", &p.X)
	io.Int32("Y", &p.Y)
	io.Int32("Z", &p.Z)
	io.Int8("Yaw", &p.Yaw)
	io.Int8("Pitch", &p.Pitch)
	io.Int16("CurrentItem", &p.CurrentItem)
	io.Metadata("Metadata", &p.Metadata)
}

type CollectItem struct {
	CollectedID int32
	CollectorID int32
}

func (*CollectItem) ID() byte { return 0x16 }

func (p *CollectItem) Marshal(io IO) {
	io.Int32("CollectedID", &p.CollectedID)
	io.Int32("CollectorID", &p.CollectorID)
}

// SpawnObject carries a velocity only when ObjectData is positive.
type SpawnObject struct {
	EntityID               int32
	Type                   int8
	X, Y, Z                int32
	ObjectData             int32
	SpeedX, SpeedY, SpeedZ int16
}

func (*SpawnObject) ID() byte { return 0x17 }

// HasVelocity reports whether the speed fields are on the wire.
func (p *SpawnObject) HasVelocity() bool {
	return p.ObjectData > 0
}

func (p *SpawnObject) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int8("Type", &p.Type)
	io.Int32("X", &p.X)
	io.Int32("Y", &p.Y)
	io.Int32("Z", &p.Z)
	io.Int32("ObjectData", &p.ObjectData)
	if p.HasVelocity() {
		io.Int16("SpeedX", &p.SpeedX)
		io.Int16("SpeedY", &p.SpeedY)
		io.Int16("SpeedZ", &p.SpeedZ)
	}
}

type SpawnMob struct {
	EntityID                        int32
	Type                            int8
	X, Y, Z                         int32
	Yaw, Pitch, HeadYaw             int8
	VelocityX, VelocityY, VelocityZ int16
	Metadata                        Metadata
}

func (*SpawnMob) ID() byte { return 0x18 }

func (p *SpawnMob) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int8("Type", &p.Type)
	io.Int32("X", &p.X)
	io.Int32("Y", &p.Y)
	io.Int32("Z", &p.Z)
	io.Int8("Yaw", &p.Yaw)
	io.Int8("Pitch", &p.Pitch)
	io.Int8("HeadYaw", &p.HeadYaw)
	io.Int16("VelocityX", &p.VelocityX)
	io.Int16("VelocityY", &p.VelocityY)
	io.Int16("VelocityZ", &p.VelocityZ)
	io.Metadata("Metadata", &p.Metadata)
}

type SpawnPainting struct {
	EntityID  int32
	Title     string
	X, Y, Z   int32
	Direction int32
}

func (*SpawnPainting) ID() byte { return 0x19 }

func (p *SpawnPainting) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.String("Title", &p.Title)
	io.Int32("X", &p.X)
	io.Int32("Y", &p.Y)
	io.Int32("Z", &p.Z)
	io.Int32("Direction", &p.Direction)
}

type SpawnExperienceOrb struct {
	EntityID int32
	X, Y, Z  int32
	Count    int16
}

func (*SpawnExperienceOrb) ID() byte { return 0x1A }

func (p *SpawnExperienceOrb) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int32("X", &p.X)
	io.Int32("Y", &p.Y)
	io.Int32("Z", &p.Z)
	io.Int16("Count", &p.Count)
}

type EntityVelocity struct {
	EntityID                        int32
	VelocityX, VelocityY, VelocityZ int16
}

func (*EntityVelocity) ID() byte { return 0x1C }

func (p *EntityVelocity) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int16("VelocityX", &p.VelocityX)
	io.Int16("VelocityY", &p.VelocityY)
	io.Int16("VelocityZ", &p.VelocityZ)
}

type DestroyEntity struct {
	EntityIDs []int32
}

func (*DestroyEntity) ID() byte { return 0x1D }

func (p *DestroyEntity) Marshal(io IO) {
	n := io.Len8("Count", len(p.EntityIDs))
	io.Int32s("EntityIDs", &p.EntityIDs, n)
}

type Entity struct {
	EntityID int32
}

func (*Entity) ID() byte { return 0x1E }

func (p *Entity) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
}

type EntityRelativeMove struct {
	EntityID   int32
	DX, DY, DZ int8
}

func (*EntityRelativeMove) ID() byte { return 0x1F }

func (p *EntityRelativeMove) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int8("DX", &p.DX)
	io.Int8("DY", &p.DY)
	io.Int8("DZ", &p.DZ)
}

type EntityLook struct {
	EntityID   int32
	Yaw, Pitch int8
}

func (*EntityLook) ID() byte { return 0x20 }

func (p *EntityLook) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int8("Yaw", &p.Yaw)
	io.Int8("Pitch", &p.Pitch)
}

type EntityLookRelativeMove struct {
	EntityID   int32
	DX, DY, DZ int8
	Yaw, Pitch int8
}

func (*EntityLookRelativeMove) ID() byte { return 0x21 }

func (p *EntityLookRelativeMove) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int8("DX", &p.DX)
	io.Int8("DY", &p.DY)
	io.Int8("DZ", &p.DZ)
	io.Int8("Yaw", &p.Yaw)
	io.Int8("Pitch", &p.Pitch)
}

type EntityTeleport struct {
	EntityID   int32
	X, Y, Z    int32
	Yaw, Pitch int8
}

func (*EntityTeleport) ID() byte { return 0x22 }

func (p *EntityTeleport) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int32("X", &p.X)
	io.Int32("Y", &p.Y)
	io.Int32("Z", &p.Z)
	io.Int8("Yaw", &p.Yaw)
	io.Int8("Pitch", &p.Pitch)
}

type EntityHeadLook struct {
	EntityID int32
	HeadYaw  int8
}

func (*EntityHeadLook) ID() byte { return 0x23 }

func (p *EntityHeadLook) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int8("HeadYaw", &p.HeadYaw)
}

type EntityStatus struct {
	EntityID int32
	Status   int8
}

func (*EntityStatus) ID() byte { return 0x26 }

func (p *EntityStatus) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int8("Status", &p.Status)
}

type AttachEntity struct {
	EntityID  int32
	VehicleID int32
}

func (*AttachEntity) ID() byte { return 0x27 }

func (p *AttachEntity) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int32("VehicleID", &p.VehicleID)
}

type EntityMetadata struct {
	EntityID int32
	Metadata Metadata
}

func (*EntityMetadata) ID() byte { return 0x28 }

func (p *EntityMetadata) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Metadata("Metadata", &p.Metadata)
}

type EntityEffect struct {
	EntityID  int32
	EffectID  int8
	Amplifier int8
	Duration  int16
}

func (*EntityEffect) ID() byte { return 0x29 }

func (p *EntityEffect) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int8("EffectID", &p.EffectID)
	io.Int8("Amplifier", &p.Amplifier)
	io.Int16("Duration", &p.Duration)
}

type RemoveEntityEffect struct {
	EntityID int32
	EffectID int8
}

func (*RemoveEntityEffect) ID() byte { return 0x2A }

func (p *RemoveEntityEffect) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int8("EffectID", &p.EffectID)
}

// SpawnGlobalEntity is used for lightning bolts.
type SpawnGlobalEntity struct {
	EntityID int32
	Type     int8
	X, Y, Z  int32
}

func (*SpawnGlobalEntity) ID() byte { return 0x47 }

func (p *SpawnGlobalEntity) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int8("Type", &p.Type)
	io.Int32("X", &p.X)
	io.Int32("Y", &p.Y)
	io.Int32("Z", &p.Z)
}
