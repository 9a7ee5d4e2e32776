package websocket

type ConnectParams struct {
	Room    string `form:"room" binding:"required"` // opaque room identifier (a date string in practice)
	Address string `form:"address"`                 // optional user address; may also arrive later via sync-user
}
