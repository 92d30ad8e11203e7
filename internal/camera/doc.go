// Package camera カメラデバイスの検出とプレビューセッションの切り替えを担う
//
// # 責務
// - カメラデバイスの検出（Registry）
// - 選択中デバイスのセッション管理と切り替え（Controller）
// - デバイスの接続・切断への追従（Watcher）
// - V4L2デバイスからのプレビュー用フレーム取得
//
// # 仕様
//   - Registry: デバイス一覧と選択位置をスナップショットとして丸ごと差し替える。
//     再検出後の選択は番号ではなくデバイスIDで追跡する
//   - Controller: 切り替えのたびに新しいセッションを作り、古いセッションは破棄する。
//     確保に失敗した場合は元のセッションを維持する
//   - Watcher: 切断は即座に、接続はデバウンス後に再検出して選択をやり直す
//   - Registry / Controller / Watcher の状態変更はメインループ（runloop）上で行う。
//     公開状態は atomic に差し替えるため、UI 側はロックなしで読み取れる
//
// # 前提要件
//   - ffmpeg: V4L2 デバイスからのフレーム取得に使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
