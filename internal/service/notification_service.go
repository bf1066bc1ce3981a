package service

import (
	"bytes"
	"context"
	"fmt"

	"course_platform_backend/internal/config"
	"course_platform_backend/internal/model"
	"course_platform_backend/internal/repository"
	"course_platform_backend/pkg/logger"
	"course_platform_backend/pkg/scheduler"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// NotificationService 整课完成副作用的实现：触发行、证书、邮件、站内推送。
// 至多一次由 course_completions 的 (user_id, course_id) 唯一索引保证。
type NotificationService struct {
	Repo       *repository.NotificationRepository
	UserRepo   *repository.UserRepository
	CourseRepo *repository.CourseRepository
	Storage    StorageProvider
	Hub        *NotificationHub
	Cfg        *config.Config
	Clock      scheduler.Clock
}

func NewNotificationService(
	repo *repository.NotificationRepository,
	userRepo *repository.UserRepository,
	courseRepo *repository.CourseRepository,
	storage StorageProvider,
	hub *NotificationHub,
	cfg *config.Config,
	clock scheduler.Clock,
) *NotificationService {
	return &NotificationService{
		Repo:       repo,
		UserRepo:   userRepo,
		CourseRepo: courseRepo,
		Storage:    storage,
		Hub:        hub,
		Cfg:        cfg,
		Clock:      clock,
	}
}

func (s *NotificationService) DispatchCourseCompletion(userID, courseID uint) error {
	cc, created, err := s.Repo.ClaimCompletion(userID, courseID)
	if err != nil {
		return err
	}
	if !created && cc.NotifiedAt != nil {
		// 此前已发过通知
		return nil
	}

	user, err := s.UserRepo.FindByID(userID)
	if err != nil {
		return err
	}
	course, err := s.CourseRepo.FindByID(courseID)
	if err != nil {
		return err
	}

	// 证书失败不拦截通知本身
	if cc.CertificateURL == "" && s.Storage != nil {
		url, err := s.uploadCertificate(user, course)
		if err != nil {
			logger.Log.Warn("certificate upload failed",
				zap.Uint("userId", userID),
				zap.Uint("courseId", courseID),
				zap.Error(err))
		} else {
			cc.CertificateURL = url
		}
	}

	if s.Cfg.Email.SendgridKey != "" && !cc.EmailSent {
		if err := s.sendCompletionEmail(user, course, cc.CertificateURL); err != nil {
			return err
		}
		cc.EmailSent = true
	}

	if s.Hub != nil {
		s.Hub.Publish(CompletionEvent{
			UserID:         userID,
			CourseID:       courseID,
			CourseTitle:    course.Title,
			CertificateURL: cc.CertificateURL,
		})
	}

	now := s.Clock.Now()
	cc.NotifiedAt = &now
	return s.Repo.Save(cc)
}

func (s *NotificationService) ListForUser(userID uint) ([]model.CourseCompletion, error) {
	return s.Repo.ListByUser(userID)
}

func (s *NotificationService) uploadCertificate(user *model.User, course *model.Course) (string, error) {
	content := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="text-align:center;font-family:serif">
  <h1>Certificate of Completion</h1>
  <p>This certifies that</p>
  <h2>%s</h2>
  <p>has successfully completed the course</p>
  <h2>%s</h2>
  <p>%s</p>
</body>
</html>`, user.Name, course.Title, s.Clock.Now().Format("2006-01-02"))

	key := fmt.Sprintf("certificates/%s.html", model.GenerateUUID())
	data := []byte(content)
	return s.Storage.Upload(context.Background(), key, bytes.NewReader(data), int64(len(data)), "text/html")
}

func (s *NotificationService) sendCompletionEmail(user *model.User, course *model.Course, certificateURL string) error {
	from := sgmail.NewEmail(s.Cfg.Email.FromName, s.Cfg.Email.FromAddress)
	to := sgmail.NewEmail(user.Name, user.Email)
	subject := fmt.Sprintf("恭喜完成课程《%s》", course.Title)

	plain := fmt.Sprintf("恭喜你完成了课程《%s》的全部课时。", course.Title)
	html := fmt.Sprintf("<p>恭喜你完成了课程《%s》的全部课时。</p>", course.Title)
	if certificateURL != "" {
		plain += fmt.Sprintf(" 证书地址：%s", certificateURL)
		html += fmt.Sprintf(`<p><a href="%s">查看证书</a></p>`, certificateURL)
	}

	message := sgmail.NewSingleEmail(from, subject, to, plain, html)
	client := sendgrid.NewSendClient(s.Cfg.Email.SendgridKey)

	resp, err := client.Send(message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
