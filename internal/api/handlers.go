package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yuanqi-assessment-server/internal/domain"
	"github.com/yuanqi-assessment-server/internal/service"
)

const dateLayout = "2006-01-02"

type compareRequest struct {
	AssessmentIDs []int64 `json:"assessment_ids"`
}

type analyzeRequest struct {
	Symptoms []service.SymptomInput `json:"symptoms"`
}

type createdAssessment struct {
	AssessmentID   int64                   `json:"assessment_id"`
	AssessmentCode string                  `json:"assessment_code"`
	AssessmentDate time.Time               `json:"assessment_date"`
	Status         domain.AssessmentStatus `json:"status"`
	Analysis       *domain.AnalysisResult  `json:"analysis"`
}

// handleHealth reports liveness and checks the assessment store.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	storage := "ok"
	status := http.StatusOK
	message := "服务正常运行"
	if err := s.assessments.Ping(ctx); err != nil {
		s.logger.WithError(err).Warn("Health check: storage unreachable")
		storage = "unavailable"
		status = http.StatusServiceUnavailable
		message = "存储不可用"
	}

	c.JSON(status, Envelope{
		Code:    status,
		Message: message,
		Data: gin.H{
			"storage":   storage,
			"version":   s.version,
			"timestamp": time.Now().UTC(),
		},
	})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, "请求格式错误")
		return
	}

	result, err := s.assessments.AnalyzeSymptoms(c.Request.Context(), req.Symptoms)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, "分析成功", result)
}

func (s *Server) handleCreateAssessment(c *gin.Context) {
	var req service.CreateAssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, "请求格式错误")
		return
	}

	detail, err := s.assessments.Create(c.Request.Context(), &req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, "评估创建成功", createdAssessment{
		AssessmentID:   detail.Assessment.ID,
		AssessmentCode: detail.Assessment.Code,
		AssessmentDate: detail.Assessment.AssessmentDate,
		Status:         detail.Assessment.Status,
		Analysis:       detail.Analysis,
	})
}

func (s *Server) handleListAssessments(c *gin.Context) {
	filter, ok := s.listFilter(c)
	if !ok {
		return
	}

	result, err := s.assessments.List(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, "获取成功", result)
}

func (s *Server) handleGetAssessment(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	detail, err := s.assessments.Get(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, "获取成功", detail)
}

func (s *Server) handleReanalyze(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	detail, err := s.assessments.Reanalyze(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, "分析成功", detail)
}

func (s *Server) handleComplete(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	a, err := s.assessments.Complete(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, "评估已完成", a)
}

func (s *Server) handleCompare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondBadRequest(c, "请求格式错误")
		return
	}

	comparison, err := s.assessments.CompareByID(c.Request.Context(), req.AssessmentIDs)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, "对比分析成功", comparison)
}

func (s *Server) handleListSymptoms(c *gin.Context) {
	page, limit, ok := s.paging(c)
	if !ok {
		return
	}

	result, err := s.catalog.List(c.Request.Context(), service.CatalogFilter{
		Organ:  c.Query("organ"),
		Search: c.Query("search"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, "获取成功", result)
}

func (s *Server) handleGetSymptom(c *gin.Context) {
	id, ok := s.pathID(c)
	if !ok {
		return
	}

	def, err := s.catalog.Get(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, "获取成功", def)
}

func (s *Server) handleAdminListAssessments(c *gin.Context) {
	filter, ok := s.listFilter(c)
	if !ok {
		return
	}

	result, err := s.assessments.AdminList(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, "获取成功", result)
}

func (s *Server) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondBadRequest(c, "无效的ID")
		return 0, false
	}
	return id, true
}

func (s *Server) paging(c *gin.Context) (page, limit int, ok bool) {
	var err error
	if raw := c.Query("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil {
			s.respondBadRequest(c, "无效的分页参数")
			return 0, 0, false
		}
	}
	if raw := c.Query("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			s.respondBadRequest(c, "无效的分页参数")
			return 0, 0, false
		}
	}
	return page, limit, true
}

func (s *Server) listFilter(c *gin.Context) (service.ListFilter, bool) {
	page, limit, ok := s.paging(c)
	if !ok {
		return service.ListFilter{}, false
	}
	filter := service.ListFilter{Page: page, Limit: limit}

	if raw := c.Query("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.respondBadRequest(c, "无效的用户ID")
			return filter, false
		}
		filter.UserID = userID
	}

	if raw := c.Query("status"); raw != "" {
		status := domain.AssessmentStatus(raw)
		if !status.IsValid() {
			s.respondBadRequest(c, "无效的状态")
			return filter, false
		}
		filter.Status = status
	}

	var err error
	if filter.From, err = parseDate(c.Query("start_date"), false); err != nil {
		s.respondBadRequest(c, "无效的开始日期")
		return filter, false
	}
	if filter.To, err = parseDate(c.Query("end_date"), true); err != nil {
		s.respondBadRequest(c, "无效的结束日期")
		return filter, false
	}
	return filter, true
}

// parseDate accepts RFC 3339 or a bare yyyy-mm-dd date. A bare end date covers the whole day.
func parseDate(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
