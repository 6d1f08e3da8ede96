package index

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// unitOfWork 跨越一次多行写入的事务，要么全部提交，要么全部回滚
type unitOfWork struct {
	tx   *sqlx.Tx
	done bool
}

func beginUnitOfWork(ctx context.Context, db *sqlx.DB) (*unitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("开启事务失败: %w", err)
	}
	return &unitOfWork{tx: tx}, nil
}

func (u *unitOfWork) commit() error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Commit()
}

// rollback 已提交时为空操作
func (u *unitOfWork) rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Rollback()
}

// runUnitOfWork 在一个事务内执行fn，fn返回错误时回滚
func runUnitOfWork(ctx context.Context, db *sqlx.DB, fn func(sqlx.ExtContext) error) error {
	uow, err := beginUnitOfWork(ctx, db)
	if err != nil {
		return err
	}
	defer uow.rollback()

	if err := fn(uow.tx); err != nil {
		return err
	}
	if err := uow.commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}
