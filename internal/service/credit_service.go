package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"glamshot/internal/entity"
	"glamshot/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultStartingCredits = 5

// ErrInsufficientCredits 表示余额不足，区别于一般性错误，
// UI 据此引导购买而不是重试。
var ErrInsufficientCredits = errors.New("insufficient credits")

// CreditService 维护远端的用户积分余额。
//
// 余额首次访问时以默认值惰性创建。Deduct/Add 都是读-改-写：
// 同一用户在两台设备上并发扣减时可能丢失一次更新（后写覆盖先写），
// 按单活跃会话的使用假设接受这一风险；需要更强一致性时应换成
// 服务端原子减操作。
type CreditService struct {
	repo            model.Repository
	startingCredits int
}

// NewCreditService 创建积分服务实例，startingCredits <= 0 时使用默认值。
func NewCreditService(repo model.Repository, startingCredits int) *CreditService {
	if startingCredits <= 0 {
		startingCredits = defaultStartingCredits
	}
	return &CreditService{
		repo:            repo,
		startingCredits: startingCredits,
	}
}

// GetBalance 读取最新余额；用户行不存在时用 email 初始化并返回默认余额。
// 既无用户行又无 email 是硬错误。
func (s *CreditService) GetBalance(ctx context.Context, userID, email string) (int, error) {
	user, err := s.loadOrBootstrap(ctx, userID, email)
	if err != nil {
		return 0, err
	}
	return user.Credits, nil
}

// Deduct 扣减余额并返回新值。余额永远从远端重读，不信任调用方缓存的旧值。
func (s *CreditService) Deduct(ctx context.Context, userID string, amount int, email string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("deduct amount must be positive")
	}

	user, err := s.loadOrBootstrap(ctx, userID, email)
	if err != nil {
		return 0, err
	}

	if user.Credits < amount {
		return user.Credits, fmt.Errorf("%w: have %d, need %d", ErrInsufficientCredits, user.Credits, amount)
	}

	updated := user.Credits - amount
	if err := s.repo.UpdateUserCredits(ctx, user.ID, updated); err != nil {
		return 0, fmt.Errorf("write credits: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id": user.ID,
		"credits": updated,
	}).Info("credits deducted")
	return updated, nil
}

// Add 增加余额并返回新值。
func (s *CreditService) Add(ctx context.Context, userID string, amount int, email string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("add amount must be positive")
	}

	user, err := s.loadOrBootstrap(ctx, userID, email)
	if err != nil {
		return 0, err
	}

	updated := user.Credits + amount
	if err := s.repo.UpdateUserCredits(ctx, user.ID, updated); err != nil {
		return 0, fmt.Errorf("write credits: %w", err)
	}
	return updated, nil
}

// loadOrBootstrap 读取用户行，不存在时按默认余额创建。
func (s *CreditService) loadOrBootstrap(ctx context.Context, userID, email string) (*entity.DbUser, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("credit ledger not configured")
	}
	trimmedID := strings.TrimSpace(userID)
	if trimmedID == "" {
		return nil, fmt.Errorf("user id is empty")
	}

	user, err := s.repo.GetUserByID(ctx, trimmedID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("read credits: %w", err)
	}

	trimmedEmail := strings.TrimSpace(email)
	if trimmedEmail == "" {
		return nil, fmt.Errorf("cannot bootstrap credits for %q without an email", trimmedID)
	}

	created := &entity.DbUser{
		ID:        trimmedID,
		CreatedAt: time.Now().UTC(),
		Email:     trimmedEmail,
		Credits:   s.startingCredits,
	}
	if err := s.repo.CreateUser(ctx, created); err != nil {
		return nil, fmt.Errorf("bootstrap credits: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id": trimmedID,
		"credits": s.startingCredits,
	}).Info("credit balance bootstrapped")
	return created, nil
}
