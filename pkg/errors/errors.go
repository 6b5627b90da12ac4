// Package errors はトレーニングループ全体のエラーハンドリングと警告システムを提供します。
// 構造化されたエラー情報を提供し、シンク単位の障害とラン全体の障害を区別します。
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// デフォルトのハンドラは標準エラー出力にログを出す
		log.Printf("trainkit-Warning: %v\n", w)
	}
	// zerologロガー（循環importを避けるため遅延初期化）
	zerologWarnFunc func(warning error)
)

// SetWarningHandler はtrainkitライブラリ全体の警告ハンドラを設定します。
// これにより、InconsistentResumeWarningなどのカスタム警告の処理方法を制御できます。
//
// 例:
//
//	errors.SetWarningHandler(func(w error) {
//	    // 警告を無視する
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc はzerolog警告関数を設定します（循環importを避けるため）。
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn は警告を発生させます。
// zerologが利用可能な場合は構造化ログとして出力し、そうでなければ従来のハンドラを使用します。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	// zerologが設定されている場合は優先的に使用
	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	// フォールバック: 従来のハンドラ
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	メトリクス境界のエラー型
//
// ===========================================================================

// InvalidMetricTypeError はAddScalarにfloat64へ正確に変換できない値が渡された場合のエラーです。
// 整数型・浮動小数点型以外の値は契約違反として拒否されます。
type InvalidMetricTypeError struct {
	Name  string
	Value interface{}
}

func (e *InvalidMetricTypeError) Error() string {
	return fmt.Sprintf("trainkit: invalid metric type for %q: %T is not a numeric scalar", e.Name, e.Value)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InvalidMetricTypeError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("metric_name", e.Name).
		Str("value_type", fmt.Sprintf("%T", e.Value)).
		Str("type", "InvalidMetricTypeError")
}

// NewInvalidMetricTypeError は新しいInvalidMetricTypeErrorを作成し、スタックトレースを付与します。
func NewInvalidMetricTypeError(name string, value interface{}) error {
	err := &InvalidMetricTypeError{Name: name, Value: value}
	return errors.WithStack(err)
}

// InvalidImageShapeError はAddImageに正規化できない形状のテンソルが渡された場合のエラーです。
// rank-2とrank-3の入力のみがrank-4 (N,H,W,C) へ正規化できます。
type InvalidImageShapeError struct {
	Name  string
	Shape []int
}

func (e *InvalidImageShapeError) Error() string {
	return fmt.Sprintf("trainkit: invalid image shape for %q: %v cannot be normalized to (N,H,W,C)", e.Name, e.Shape)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *InvalidImageShapeError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("metric_name", e.Name).
		Ints("shape", e.Shape).
		Str("type", "InvalidImageShapeError")
}

// NewInvalidImageShapeError は新しいInvalidImageShapeErrorを作成し、スタックトレースを付与します。
func NewInvalidImageShapeError(name string, shape []int) error {
	err := &InvalidImageShapeError{Name: name, Shape: shape}
	return errors.WithStack(err)
}

// UnknownMetricError は一度も記録されていないメトリクス名を参照した場合のエラーです。
type UnknownMetricError struct {
	Name string
}

func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("trainkit: unknown metric %q: no value has been recorded under this name", e.Name)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *UnknownMetricError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("metric_name", e.Name).
		Str("type", "UnknownMetricError")
}

// NewUnknownMetricError は新しいUnknownMetricErrorを作成し、スタックトレースを付与します。
func NewUnknownMetricError(name string) error {
	err := &UnknownMetricError{Name: name}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	シンク単位のエラー型
//
// ===========================================================================

// SinkWriteError はモニタの永続化層（ディスク書き込みなど）が失敗した場合のエラーです。
// シンク単位で記録され、他のシンクやラン自体には伝播しません。
type SinkWriteError struct {
	Sink string // 失敗したシンク名（例: "JSONWriter", "EventWriter"）
	Op   string // 失敗した操作（例: "flush", "rename"）
	Err  error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("trainkit: %s: %s failed: %v", e.Sink, e.Op, e.Err)
}

func (e *SinkWriteError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *SinkWriteError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("sink", e.Sink).
		Str("operation", e.Op).
		AnErr("cause", e.Err).
		Str("type", "SinkWriteError")
}

// NewSinkWriteError は新しいSinkWriteErrorを作成し、スタックトレースを付与します。
func NewSinkWriteError(sink, op string, err error) error {
	sinkErr := &SinkWriteError{Sink: sink, Op: op, Err: err}
	return errors.WithStack(sinkErr)
}

// ===========================================================================
//
//	再開時の警告型
//
// ===========================================================================

// InconsistentResumeWarning は永続化された統計履歴と宣言された開始エポックの不整合を示す警告です。
// 既存ファイルのバックアップと新規履歴の開始で解決され、致命的エラーにはなりません。
type InconsistentResumeWarning struct {
	HistoryEpoch  int // 履歴に記録された最後のエポック
	StartingEpoch int // トレーナーが宣言した開始エポック
	BackupPath    string
}

func (w *InconsistentResumeWarning) Error() string {
	return fmt.Sprintf("history epoch=%d from stats file is not the predecessor of starting_epoch=%d; backing up to %s and starting fresh",
		w.HistoryEpoch, w.StartingEpoch, w.BackupPath)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *InconsistentResumeWarning) MarshalZerologObject(event *zerolog.Event) {
	event.Int("history_epoch", w.HistoryEpoch).
		Int("starting_epoch", w.StartingEpoch).
		Str("backup_path", w.BackupPath).
		Str("type", "InconsistentResumeWarning")
}

// NewInconsistentResumeWarning は新しいInconsistentResumeWarningを作成します。
func NewInconsistentResumeWarning(historyEpoch, startingEpoch int, backupPath string) *InconsistentResumeWarning {
	return &InconsistentResumeWarning{
		HistoryEpoch:  historyEpoch,
		StartingEpoch: startingEpoch,
		BackupPath:    backupPath,
	}
}

// ===========================================================================
//
//	状態遷移のエラー型
//
// ===========================================================================

// RestoreAfterRunError はRunがステップ実行を開始した後にRestoreを呼び出した場合のエラーです。
// 実行中の復元は未定義動作のため拒否されます。
type RestoreAfterRunError struct {
	EpochNum   int
	GlobalStep int
}

func (e *RestoreAfterRunError) Error() string {
	return fmt.Sprintf("trainkit: cannot restore after stepping has begun (epoch_num=%d, global_step=%d)",
		e.EpochNum, e.GlobalStep)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *RestoreAfterRunError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("epoch_num", e.EpochNum).
		Int("global_step", e.GlobalStep).
		Str("type", "RestoreAfterRunError")
}

// NewRestoreAfterRunError は新しいRestoreAfterRunErrorを作成し、スタックトレースを付与します。
func NewRestoreAfterRunError(epochNum, globalStep int) error {
	err := &RestoreAfterRunError{EpochNum: epochNum, GlobalStep: globalStep}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyCheckpoint は空のチェックポイントが渡された場合のエラーです。
	ErrEmptyCheckpoint = New("empty checkpoint")

	// ErrClosedSink はクローズ済みのシンクへの書き込みエラーです。
	ErrClosedSink = New("sink is closed")
)
