package protocol

import "fmt"

// Chunk, block and world effect packets. All are sent by the server.

func init() {
	register(0x33, "ChunkData", ServerToClient, func() Packet { return &ChunkData{} })
	register(0x34, "MultiBlockChange", ServerToClient, func() Packet { return &MultiBlockChange{} })
	register(0x35, "BlockChange", ServerToClient, func() Packet { return &BlockChange{} })
	register(0x36, "BlockAction", ServerToClient, func() Packet { return &BlockAction{} })
	register(0x37, "BlockBreakAnimation", ServerToClient, func() Packet { return &BlockBreakAnimation{} })
	register(0x38, "MapChunkBulk", ServerToClient, func() Packet { return &MapChunkBulk{} })
	register(0x3C, "Explosion", ServerToClient, func() Packet { return &Explosion{} })
	register(0x3D, "SoundParticleEffect", ServerToClient, func() Packet { return &SoundParticleEffect{} })
	register(0x3E, "NamedSoundEffect", ServerToClient, func() Packet { return &NamedSoundEffect{} })
	register(0x83, "ItemData", ServerToClient, func() Packet { return &ItemData{} })
	register(0x84, "UpdateTileEntity", ServerToClient, func() Packet { return &UpdateTileEntity{} })
}

// ChunkData carries one zlib-compressed chunk column, kept compressed.
type ChunkData struct {
	X, Z               int32
	GroundUpContinuous bool
	PrimaryBitMap      uint16
	AddBitMap          uint16
	Data               []byte
}

func (*ChunkData) ID() byte { return 0x33 }

func (p *ChunkData) Marshal(io IO) {
	io.Int32("X", &p.X)
	io.Int32("Z", &p.Z)
	io.Bool("GroundUpContinuous", &p.GroundUpContinuous)
	io.Uint16("PrimaryBitMap", &p.PrimaryBitMap)
	io.Uint16("AddBitMap", &p.AddBitMap)
	n := io.Len32("CompressedSize", len(p.Data))
	io.Bytes("Data", &p.Data, n)
}

// MultiBlockChange keeps its 4-byte records packed. RecordCount is sent
// separately from the byte length and must agree with it.
type MultiBlockChange struct {
	ChunkX, ChunkZ int32
	RecordCount    int16
	Data           []byte
}

func (*MultiBlockChange) ID() byte { return 0x34 }

func (p *MultiBlockChange) Marshal(io IO) {
	io.Int32("ChunkX", &p.ChunkX)
	io.Int32("ChunkZ", &p.ChunkZ)
	io.Int16("RecordCount", &p.RecordCount)
	n := io.Len32("DataSize", len(p.Data))
	io.Bytes("Data", &p.Data, n)
}

func (p *MultiBlockChange) check() error {
	if int(p.RecordCount)*4 != len(p.Data) {
		return fmt.Errorf("%w: RecordCount %d does not match %d data bytes", ErrMalformed, p.RecordCount, len(p.Data))
	}
	return nil
}

type BlockChange struct {
	X             int32
	Y             uint8
	Z             int32
	BlockType     int16
	BlockMetadata int8
}

func (*BlockChange) ID() byte { return 0x35 }

func (p *BlockChange) Marshal(io IO) {
	io.Int32("X", &p.X)
	io.Uint8("Y", &p.Y)
	io.Int32("Z", &p.Z)
	io.Int16("BlockType", &p.BlockType)
	io.Int8("BlockMetadata", &p.BlockMetadata)
}

type BlockAction struct {
	X       int32
	Y       int16
	Z       int32
	Byte1   int8
	Byte2   int8
	BlockID int16
}

func (*BlockAction) ID() byte { return 0x36 }

func (p *BlockAction) Marshal(io IO) {
	io.Int32("X", &p.X)
	io.Int16("Y", &p.Y)
	io.Int32("Z", &p.Z)
	io.Int8("Byte1", &p.Byte1)
	io.Int8("Byte2", &p.Byte2)
	io.Int16("BlockID", &p.BlockID)
}

type BlockBreakAnimation struct {
	EntityID     int32
	X, Y, Z      int32
	DestroyStage int8
}

func (*BlockBreakAnimation) ID() byte { return 0x37 }

func (p *BlockBreakAnimation) Marshal(io IO) {
	io.Int32("EntityID", &p.EntityID)
	io.Int32("X", &p.X)
	io.Int32("Y", &p.Y)
	io.Int32("Z", &p.Z)
	io.Int8("DestroyStage", &p.DestroyStage)
}

// ChunkMeta locates one column inside a MapChunkBulk payload.
type ChunkMeta struct {
	X, Z          int32
	PrimaryBitMap uint16
	AddBitMap     uint16
}

// MapChunkBulk carries several compressed columns followed by their
// coordinates. The column count precedes the data but describes the
// trailing meta records.
type MapChunkBulk struct {
	Data   []byte
	Chunks []ChunkMeta
}

func (*MapChunkBulk) ID() byte { return 0x38 }

func (p *MapChunkBulk) Marshal(io IO) {
	count := io.Len16("ChunkCount", len(p.Chunks))
	n := io.Len32("DataLength", len(p.Data))
	io.Bytes("Data", &p.Data, n)
	records(io, "Chunks", &p.Chunks, count, func(c *ChunkMeta) {
		io.Int32("X", &c.X)
		io.Int32("Z", &c.Z)
		io.Uint16("PrimaryBitMap", &c.PrimaryBitMap)
		io.Uint16("AddBitMap", &c.AddBitMap)
	})
}

// ExplosionRecord is a destroyed block offset relative to the centre.
type ExplosionRecord struct {
	DX, DY, DZ int8
}

type Explosion struct {
	X, Y, Z       float64
	Radius        float32
	Records       []ExplosionRecord
	PlayerMotionX float32
	PlayerMotionY float32
	PlayerMotionZ float32
}

func (*Explosion) ID() byte { return 0x3C }

func (p *Explosion) Marshal(io IO) {
	io.Float64("X", &p.X)
	io.Float64("Y", &p.Y)
	io.Float64("Z", &p.Z)
	io.Float32("Radius", &p.Radius)
	n := io.Len32("RecordCount", len(p.Records))
	records(io, "Records", &p.Records, n, func(r *ExplosionRecord) {
		io.Int8("DX", &r.DX)
		io.Int8("DY", &r.DY)
		io.Int8("DZ", &r.DZ)
	})
	io.Float32("PlayerMotionX", &p.PlayerMotionX)
	io.Float32("PlayerMotionY", &p.PlayerMotionY)
	io.Float32("PlayerMotionZ", &p.PlayerMotionZ)
}

type SoundParticleEffect struct {
	EffectID              int32
	X                     int32
	Y                     int8
	Z                     int32
	Data                  int32
	DisableRelativeVolume bool
}

func (*SoundParticleEffect) ID() byte { return 0x3D }

func (p *SoundParticleEffect) Marshal(io IO) {
	io.Int32("EffectID", &p.EffectID)
	io.Int32("X", &p.X)
	io.Int8("Y", &p.Y)
	io.Int32("Z", &p.Z)
	io.Int32("Data", &p.Data)
	io.Bool("DisableRelativeVolume", &p.DisableRelativeVolume)
}

type NamedSoundEffect struct {
	SoundName string
	X, Y, Z   int32
	Volume    float32
	Pitch     int8
}

func (*NamedSoundEffect) ID() byte { return 0x3E }

func (p *NamedSoundEffect) Marshal(io IO) {
	io.String("SoundName", &p.SoundName)
	io.Int32("X", &p.X)
	io.Int32("Y", &p.Y)
	io.Int32("Z", &p.Z)
	io.Float32("Volume", &p.Volume)
	io.Int8("Pitch", &p.Pitch)
}

// ItemData carries map pixels and similar per-item payloads.
type ItemData struct {
	ItemType int16
	ItemID   int16
	Text     []byte
}

func (*ItemData) ID() byte { return 0x83 }

func (p *ItemData) Marshal(io IO) {
	io.Int16("ItemType", &p.ItemType)
	io.Int16("ItemID", &p.ItemID)
	shortBytes(io, "Text", &p.Text)
}

// UpdateTileEntity carries gzip-compressed NBT only when the length is
// positive.
type UpdateTileEntity struct {
	X      int32
	Y      int16
	Z      int32
	Action int8
	NBT    []byte
}

func (*UpdateTileEntity) ID() byte { return 0x84 }

func (p *UpdateTileEntity) Marshal(io IO) {
	io.Int32("X", &p.X)
	io.Int16("Y", &p.Y)
	io.Int32("Z", &p.Z)
	io.Int8("Action", &p.Action)
	shortBytes(io, "NBT", &p.NBT)
}
