package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hoshino/questlog/server/game/catalog"
	"github.com/hoshino/questlog/server/game/progression"
	"github.com/hoshino/questlog/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)

	catalogSvc := catalog.NewService(db, c)
	progSvc := progression.NewService(db, catalogSvc)

	questH := NewQuestHandler(catalogSvc, nil)
	charH := NewCharacterHandler(progSvc, nil)
	progH := NewProgressionHandler(progSvc, nil, pubsub)
	logger, _ := zap.NewDevelopment()
	rankH := NewRankingHandler(db, c, logger)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/quests", questH.Create)
	api.GET("/quests", questH.List)
	api.POST("/characters", charH.Create)
	api.GET("/characters", charH.List)
	api.GET("/characters/:id/quests", progH.Status)
	api.GET("/characters/:id/quests/available", progH.Available)
	api.POST("/characters/:id/quests/:quest_id", progH.Assign)
	api.POST("/characters/:id/complete", progH.Complete)
	api.GET("/ranking/xp", rankH.TopXP)

	return &testEnv{router: r, db: db}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (e *testEnv) createQuest(t *testing.T, title string, rewardXP int) int64 {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/quests", gin.H{"title": title, "reward_xp": rewardXP})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return int64(decode(t, w)["id"].(float64))
}

func (e *testEnv) createCharacter(t *testing.T, name string) int64 {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/characters", gin.H{"name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return int64(decode(t, w)["id"].(float64))
}

func TestCreateQuest_Validation(t *testing.T) {
	env := setupRouter(t)

	// Missing fields rejected by binding.
	w := env.do(t, http.MethodPost, "/api/quests", gin.H{"title": "Tutorial"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Title too short.
	w = env.do(t, http.MethodPost, "/api/quests", gin.H{"title": "ab", "reward_xp": 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Negative reward.
	w = env.do(t, http.MethodPost, "/api/quests", gin.H{"title": "Tutorial", "reward_xp": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateQuest_DuplicateTitleConflict(t *testing.T) {
	env := setupRouter(t)
	env.createQuest(t, "Tutorial", 10)

	w := env.do(t, http.MethodPost, "/api/quests", gin.H{"title": "Tutorial", "reward_xp": 50})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateCharacter_DuplicateNameConflict(t *testing.T) {
	env := setupRouter(t)
	env.createCharacter(t, "Alice")

	w := env.do(t, http.MethodPost, "/api/characters", gin.H{"name": "Alice"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAssign_NotFoundCases(t *testing.T) {
	env := setupRouter(t)
	charID := env.createCharacter(t, "Hero")
	questID := env.createQuest(t, "Tutorial", 10)

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/characters/%d/quests/9999", charID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/characters/9999/quests/%d", questID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/characters/abc/quests/1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuestFlow(t *testing.T) {
	env := setupRouter(t)
	charID := env.createCharacter(t, "Hero")
	tutorialID := env.createQuest(t, "Tutorial", 10)
	dragonID := env.createQuest(t, "Dragon", 100)

	// First assignment activates immediately.
	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/characters/%d/quests/%d", charID, tutorialID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["activated"])
	assert.Equal(t, false, body["queued"])

	// Second assignment queues.
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/characters/%d/quests/%d", charID, dragonID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, false, body["activated"])
	assert.Equal(t, true, body["queued"])

	// Re-assigning a held quest conflicts.
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/characters/%d/quests/%d", charID, dragonID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Complete the tutorial: +10 xp, dragon promoted.
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/characters/%d/complete", charID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.EqualValues(t, 10, body["xp_gained"])
	assert.EqualValues(t, 10, body["xp_total"])

	// Status shows dragon active, tutorial completed, nothing available.
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/characters/%d/quests", charID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	active := body["active_quest"].(map[string]interface{})
	assert.EqualValues(t, dragonID, active["id"])
	assert.Len(t, body["completed_quests"], 1)
	assert.Empty(t, body["available_quests"])

	// Complete the dragon: +100 xp, idle afterwards.
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/characters/%d/complete", charID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.EqualValues(t, 110, body["xp_total"])

	// Completing while idle is a 400.
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/characters/%d/complete", charID), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAvailable_Endpoint(t *testing.T) {
	env := setupRouter(t)
	charID := env.createCharacter(t, "Hero")
	questID := env.createQuest(t, "Tutorial", 10)
	env.createQuest(t, "Dragon", 100)

	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/characters/%d/quests/%d", charID, questID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/characters/%d/quests/available", charID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	quests := body["quests"].([]interface{})
	require.Len(t, quests, 1)
	assert.Equal(t, "Dragon", quests[0].(map[string]interface{})["title"])
}

func TestListQuests(t *testing.T) {
	env := setupRouter(t)
	env.createQuest(t, "Tutorial", 10)
	env.createQuest(t, "Dragon", 100)

	w := env.do(t, http.MethodGet, "/api/quests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["quests"], 2)
}

func TestListCharacters(t *testing.T) {
	env := setupRouter(t)
	env.createCharacter(t, "Alice")
	env.createCharacter(t, "Bob")

	w := env.do(t, http.MethodGet, "/api/characters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["characters"], 2)
}

func TestRankingTopXP(t *testing.T) {
	env := setupRouter(t)
	aliceID := env.createCharacter(t, "Alice")
	bobID := env.createCharacter(t, "Bob")

	tutorialID := env.createQuest(t, "Tutorial", 10)
	dragonID := env.createQuest(t, "Dragon", 100)

	// Bob completes the dragon, Alice the tutorial.
	w := env.do(t, http.MethodPost, fmt.Sprintf("/api/characters/%d/quests/%d", bobID, dragonID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/characters/%d/complete", bobID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/characters/%d/quests/%d", aliceID, tutorialID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, fmt.Sprintf("/api/characters/%d/complete", aliceID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/ranking/xp", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	ranking := body["ranking"].([]interface{})
	require.Len(t, ranking, 2)
	top := ranking[0].(map[string]interface{})
	assert.Equal(t, "Bob", top["char_name"])
	assert.EqualValues(t, 100, top["xp"])
}
