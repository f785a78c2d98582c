package protocol

// Inventory window and sign packets.

func init() {
	register(0x64, "OpenWindow", ServerToClient, func() Packet { return &OpenWindow{} })
	register(0x65, "CloseWindow", Bidirectional, func() Packet { return &CloseWindow{} })
	register(0x66, "ClickWindow", ClientToServer, func() Packet { return &ClickWindow{} })
	register(0x67, "SetSlot", ServerToClient, func() Packet { return &SetSlot{} })
	register(0x68, "SetWindowItems", ServerToClient, func() Packet { return &SetWindowItems{} })
	register(0x69, "UpdateWindowProperty", ServerToClient, func() Packet { return &UpdateWindowProperty{} })
	register(0x6A, "ConfirmTransaction", Bidirectional, func() Packet { return &ConfirmTransaction{} })
	register(0x6B, "CreativeInventoryAction", Bidirectional, func() Packet { return &CreativeInventoryAction{} })
	register(0x6C, "EnchantItem", ClientToServer, func() Packet { return &EnchantItem{} })
	register(0x82, "UpdateSign", Bidirectional, func() Packet { return &UpdateSign{} })
}

type OpenWindow struct {
	WindowID      int8
	InventoryType int8
	WindowTitle   string
	SlotCount     int8
}

func (*OpenWindow) ID() byte { return 0x64 }

func (p *OpenWindow) Marshal(io IO) {
	io.Int8("WindowID", &p.WindowID)
	io.Int8("InventoryType", &p.InventoryType)
	io.String("WindowTitle", &p.WindowTitle)
	io.Int8("SlotCount", &p.SlotCount)
}

type CloseWindow struct {
	WindowID int8
}

func (*CloseWindow) ID() byte { return 0x65 }

func (p *CloseWindow) Marshal(io IO) {
	io.Int8("WindowID", &p.WindowID)
}

type ClickWindow struct {
	WindowID     int8
	SlotIndex    int16
	MouseButton  int8
	ActionNumber int16
	Shift        bool
	ClickedItem  Slot
}

func (*ClickWindow) ID() byte { return 0x66 }

func (p *ClickWindow) Marshal(io IO) {
	io.Int8("WindowID", &p.WindowID)
	io.Int16("SlotIndex", &p.SlotIndex)
	io.Int8("MouseButton", &p.MouseButton)
	io.Int16("ActionNumber", &p.ActionNumber)
	io.Bool("Shift", &p.Shift)
	io.Slot("ClickedItem", &p.ClickedItem)
}

type SetSlot struct {
	WindowID  int8
	SlotIndex int16
	Item      Slot
}

func (*SetSlot) ID() byte { return 0x67 }

func (p *SetSlot) Marshal(io IO) {
	io.Int8("WindowID", &p.WindowID)
	io.Int16("SlotIndex", &p.SlotIndex)
	io.Slot("Item", &p.Item)
}

type SetWindowItems struct {
	WindowID int8
	Items    []Slot
}

func (*SetWindowItems) ID() byte { return 0x68 }

func (p *SetWindowItems) Marshal(io IO) {
	io.Int8("WindowID", &p.WindowID)
	n := io.Len16("Count", len(p.Items))
	io.Slots("Items", &p.Items, n)
}

type UpdateWindowProperty struct {
	WindowID int8
	Property int16
	Value    int16
}

func (*UpdateWindowProperty) ID() byte { return 0x69 }

func (p *UpdateWindowProperty) Marshal(io IO) {
	io.Int8("WindowID", &p.WindowID)
	io.Int16("Property", &p.Property)
	io.Int16("Value", &p.Value)
}

type ConfirmTransaction struct {
	WindowID     int8
	ActionNumber int16
	Accepted     bool
}

func (*ConfirmTransaction) ID() byte { return 0x6A }

func (p *ConfirmTransaction) Marshal(io IO) {
	io.Int8("WindowID", &p.WindowID)
	io.Int16("ActionNumber", &p.ActionNumber)
	io.Bool("Accepted", &p.Accepted)
}

type CreativeInventoryAction struct {
	SlotIndex   int16
	ClickedItem Slot
}

func (*CreativeInventoryAction) ID() byte { return 0x6B }

func (p *CreativeInventoryAction) Marshal(io IO) {
	io.Int16("SlotIndex", &p.SlotIndex)
	io.Slot("ClickedItem", &p.ClickedItem)
}

type EnchantItem struct {
	WindowID    int8
	Enchantment int8
}

func (*EnchantItem) ID() byte { return 0x6C }

func (p *EnchantItem) Marshal(io IO) {
	io.Int8("WindowID", &p.WindowID)
	io.Int8("Enchantment", &p.Enchantment)
}

type UpdateSign struct {
	X     int32
	Y     int16
	Z     int32
	Lines [4]string
}

func (*UpdateSign) ID() byte { return 0x82 }

func (p *UpdateSign) Marshal(io IO) {
	io.Int32("X", &p.X)
	io.Int16("Y", &p.Y)
	io.Int32("Z", &p.Z)
	io.String("Line1", &p.Lines[0])
	io.String("Line2", &p.Lines[1])
	io.String("Line3", &p.Lines[2])
	io.String("Line4", &p.Lines[3])
}
