package realtime

import "context"

// Reader はクライアントからの受信フレームを1つ読む。
// 接続が切れた場合はエラーを返す。受信内容は使わない（キープアライブのみ）。
type Reader interface {
	ReadFrame(ctx context.Context) error
}

// Serve はconnをtopicに登録し、切断かctxのキャンセルまで受信を続ける。
// どの経路で終了しても登録は必ず解除する。トランスポートのクローズは呼び出し元が行う。
func Serve(ctx context.Context, registry *Registry, topic string, conn Conn, reader Reader) error {
	if err := registry.Register(topic, conn); err != nil {
		return err
	}
	defer registry.Unregister(topic, conn)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := reader.ReadFrame(ctx); err != nil {
			return err
		}
	}
}
