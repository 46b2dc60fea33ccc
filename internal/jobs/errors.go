package jobs

import "errors"

var (
	// ErrNotFound はジョブレコードが存在しない場合のエラーです。
	ErrNotFound = errors.New("jobs: record not found")
	// ErrAlreadyExists は同じ ID のレコードが既にある場合のエラーです。
	ErrAlreadyExists = errors.New("jobs: record already exists")
	// ErrStageRegression はステージの後退や不明なステージへの書き込みです。
	ErrStageRegression = errors.New("jobs: stage regression")
	// ErrTerminalStage は終端ステージ後の書き込みです。
	ErrTerminalStage = errors.New("jobs: record is in a terminal stage")
	// ErrNoIngestion は取り込みステージ以外での進捗書き込みです。
	ErrNoIngestion = errors.New("jobs: progress outside creating_vectordb")
	// ErrNoRunner はランナー未登録でディスパッチした場合のエラーです。
	ErrNoRunner = errors.New("jobs: no runner registered")
	// ErrAlreadyStarted は開始済みジョブを再実行しようとした場合のエラーです。
	// このエラーではレコードを failed にしません。
	ErrAlreadyStarted = errors.New("jobs: job already started")
)
