package services

// StatisticsService は以下のファイルに分割されています：
//
// - statistics_core.go: StatisticsService構造体、正規化、移動平均、トレンド、季節性、信頼度
// - statistics_math.go: 平均・標準偏差・最小二乗法などの内部ヘルパー
// - statistics_correlation.go: ピアソン相関と加重平均
// - statistics_anomaly.go: IQRによる外れ値検出とzスコアの深刻度
//
// 全てのメソッドは純粋関数で、退化した入力（空・長さ不一致・分散ゼロ）に対しては
// エラーではなく決められた中立値を返します。
