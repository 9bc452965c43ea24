package dialcode

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
)

const adnLogPrefix = "[AdnQuery]"

// adnQuery 一次 SIM 通讯录查询,创建于分发器,只会完成或取消一次
type adnQuery struct {
	id    string
	index int
	row   int
	subID int

	host     Host
	progress ProgressHandle
	cancelOp context.CancelFunc

	// cancelled 与 field 只在 UI 循环上读写,取消与回填不会交错
	cancelled bool
	field     TextField
}

// onUserCancel 进度框上的取消(UI 循环上):解绑输入框、关闭进度框、取消底层操作
func (q *adnQuery) onUserCancel() {
	q.cancel()
	log.Printf("%s 用户取消查询 %s", adnLogPrefix, q.id)
}

// cancel UI 循环上调用,之后完成回调不再写任何东西
func (q *adnQuery) cancel() {
	q.cancelled = true
	q.field = nil
	if q.progress != nil {
		q.progress.Dismiss()
	}
	q.cancelOp()
}

// adnSlot 全局唯一的"上一个查询"槽位,只在 UI 循环上访问
type adnSlot struct {
	current *adnQuery
}

// replace 先取消旧查询,再登记新查询
func (s *adnSlot) replace(q *adnQuery) {
	if s.current != nil {
		log.Printf("%s 取消上一个查询 %s", adnLogPrefix, s.current.id)
		s.current.cancel()
	}
	s.current = q
}

// release 查询完成时清空槽位(槽位已被替换则不动)
func (s *adnSlot) release(q *adnQuery) {
	if s.current == q {
		s.current = nil
	}
}

func (s *adnSlot) clear() {
	if s.current == nil {
		return
	}
	s.current.cancel()
	s.current = nil
}

// startAdnQuery 打开进度框并在后台读取 SIM 通讯录,结果回投到 UI 循环
func (d *Dispatcher) startAdnQuery(host Host, index int, field TextField) bool {
	opCtx, cancelOp := context.WithCancel(context.Background())
	q := &adnQuery{
		id:       uuid.NewString(),
		index:    index,
		row:      index - 1,
		subID:    host.Env.DefaultVoiceSubID(),
		host:     host,
		cancelOp: cancelOp,
		field:    field,
	}

	q.progress = host.Surface.ShowProgress(Progress{
		Title:      host.text(StrSimContactsTitle),
		Message:    host.text(StrSimContactsLoading),
		Cancelable: true,
		OnCancel:   q.onUserCancel,
	})

	d.adn.replace(q)
	log.Printf("%s 🔍 查询 %s: subId=%d 第 %d 条", adnLogPrefix, q.id, q.subID, index)

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		records, err := d.deps.Telephony.QueryAdn(opCtx, q.subID)
		if !d.looper.Post(func(context.Context) { d.completeAdnQuery(q, records, err) }) {
			log.Printf("%s UI 循环已退出,丢弃查询 %s 的结果", adnLogPrefix, q.id)
			cancelOp()
		}
	}()
	return true
}

// completeAdnQuery UI 循环上执行
func (d *Dispatcher) completeAdnQuery(q *adnQuery, records []AdnRecord, err error) {
	defer q.cancelOp()
	d.adn.release(q)

	if q.cancelled {
		log.Printf("%s 查询 %s 已取消,忽略结果", adnLogPrefix, q.id)
		return
	}
	q.progress.Dismiss()

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("%s ❌ 查询 %s 失败: %v", adnLogPrefix, q.id, err)
		}
		return
	}

	field := q.field
	if field == nil || q.row < 0 || q.row >= len(records) || records[q.row].Number == "" {
		log.Printf("%s 查询 %s 无可回填结果(共 %d 条)", adnLogPrefix, q.id, len(records))
		return
	}

	record := records[q.row]
	field.Replace(record.Number)
	if record.Name != "" {
		q.host.Surface.Toast(q.host.text(StrCallNumber, record.Name))
	}
	log.Printf("%s ✅ 查询 %s 回填第 %d 条", adnLogPrefix, q.id, q.index)
}
